package models

import "time"

// UsageQuota is the per-user, per-billing-period counter of pages consumed
// against the plan limit. Reservation is a conditional increment, so
// pages_processed never exceeds pages_limit.
type UsageQuota struct {
	UserID         string    `db:"user_id" json:"user_id"`
	PeriodStart    time.Time `db:"period_start" json:"period_start"`
	PeriodEnd      time.Time `db:"period_end" json:"period_end"`
	PagesProcessed int       `db:"pages_processed" json:"pages_processed"`
	PagesLimit     int       `db:"pages_limit" json:"pages_limit"`
}

// Remaining returns the number of pages still available in the period.
func (q UsageQuota) Remaining() int {
	remaining := q.PagesLimit - q.PagesProcessed
	if remaining < 0 {
		return 0
	}
	return remaining
}
