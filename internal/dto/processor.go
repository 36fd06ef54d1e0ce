package dto

// ProcessorRunSummary reports what a single processing pass did.
type ProcessorRunSummary struct {
	BatchesClaimed     int `json:"batches_claimed"`
	DocumentsAttempted int `json:"documents_attempted"`
	DocumentsCompleted int `json:"documents_completed"`
	DocumentsFailed    int `json:"documents_failed"`
	DocumentsRequeued  int `json:"documents_requeued"`
	PagesCharged       int `json:"pages_charged"`
}

// Add folds a per-batch summary into the run total.
func (s *ProcessorRunSummary) Add(other ProcessorRunSummary) {
	s.BatchesClaimed += other.BatchesClaimed
	s.DocumentsAttempted += other.DocumentsAttempted
	s.DocumentsCompleted += other.DocumentsCompleted
	s.DocumentsFailed += other.DocumentsFailed
	s.DocumentsRequeued += other.DocumentsRequeued
	s.PagesCharged += other.PagesCharged
}
