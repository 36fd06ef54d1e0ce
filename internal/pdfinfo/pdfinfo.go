package pdfinfo

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageCount returns the number of pages of an in-memory PDF. Images and other
// non-PDF uploads always count as one page and never reach this function.
func PageCount(content []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(content), nil)
	if err != nil {
		return 0, fmt.Errorf("count pdf pages: %w", err)
	}
	if count < 1 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return count, nil
}
