package classify

import (
	"bytes"
	"strings"

	"github.com/parsepoint/parsepoint-api/internal/models"
)

// Classifier assigns a coarse document-type label used to pick a default
// extraction prompt under the auto strategy.
type Classifier interface {
	Classify(content []byte, mimeType string) models.DocumentType
}

// KeywordClassifier scans the leading bytes of a PDF for type-revealing
// keywords. Non-PDF uploads (scanned images) carry no extractable text, so
// they classify as general.
type KeywordClassifier struct{}

// NewKeywordClassifier constructs the classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// scanWindow bounds how much of the file the keyword scan reads. Type markers
// sit on the first page in practice.
const scanWindow = 64 << 10

var typeKeywords = []struct {
	docType  models.DocumentType
	keywords []string
}{
	{models.DocumentTypeInvoice, []string{"invoice", "bill to", "amount due", "invoice number"}},
	{models.DocumentTypeReceipt, []string{"receipt", "change due", "cash tendered", "thank you for your purchase"}},
	{models.DocumentTypeContract, []string{"agreement", "hereinafter", "party of the first part", "terms and conditions"}},
	{models.DocumentTypeStatement, []string{"statement", "opening balance", "closing balance", "account summary"}},
}

// Classify returns the first type whose keywords appear in the document text.
// Order matters: invoice markers win over statement markers when both appear.
func (c *KeywordClassifier) Classify(content []byte, mimeType string) models.DocumentType {
	if mimeType != "application/pdf" {
		return models.DocumentTypeGeneral
	}
	window := content
	if len(window) > scanWindow {
		window = window[:scanWindow]
	}
	text := strings.ToLower(string(bytes.ToValidUTF8(window, nil)))
	for _, entry := range typeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.docType
			}
		}
	}
	return models.DocumentTypeGeneral
}
