package raster

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"pdf-translator/internal/types"
)

var pdfMagic = []byte("%PDF-")

// ValidateUpload checks an uploaded file for the PDF magic header and the
// configured size limit. Failures reject the upload before a task is created.
func ValidateUpload(data []byte, maxBytes int64) error {
	if len(data) == 0 {
		return types.NewValidationError("empty upload", nil)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return types.NewValidationError(
			fmt.Sprintf("file too large: %d bytes exceeds limit of %d", len(data), maxBytes), nil)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return types.NewValidationError("not a PDF file", nil)
	}
	return nil
}

// PageCount returns the number of pages in the PDF.
func PageCount(pdfPath string) (int, error) {
	n, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, types.NewProcessingError(types.StageConversion, -1, "failed to count pages", err)
	}
	return n, nil
}

// HasTextLayer reports whether the PDF carries embedded text. The result is
// informational only; the pipeline always goes through OCR because embedded
// text carries no region geometry.
func HasTextLayer(pdfPath string) (hasText bool, err error) {
	// The reader panics on malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			hasText = false
			err = types.NewProcessingError(types.StageConversion, -1,
				fmt.Sprintf("PDF inspection panicked: %v", r), nil)
		}
	}()

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return false, types.NewProcessingError(types.StageConversion, -1, "failed to open PDF for inspection", err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			return true, nil
		}
	}
	return false, nil
}
