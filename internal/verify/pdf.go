// Package verify spot-checks a converted PDF: is the file structurally
// sound, and does it actually carry the text layer that makes it
// searchable? Operators run this on an item's pdfPath when an OCR result
// looks suspicious.
package verify

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// Result summarizes one verification pass.
type Result struct {
	Path      string
	Pages     int
	TextPages int
	HasText   bool
}

// File validates the PDF's structure and scans every page for extractable
// text. A valid file with zero text pages converted, but is not searchable.
func File(path string) (Result, error) {
	if err := pdfapi.ValidateFile(path, nil); err != nil {
		return Result{}, fmt.Errorf("invalid PDF %s: %w", path, err)
	}

	pages, err := pdfapi.PageCountFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("counting pages in %s: %w", path, err)
	}

	textPages, err := countTextPages(path)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Path:      path,
		Pages:     pages,
		TextPages: textPages,
		HasText:   textPages > 0,
	}, nil
}

func countTextPages(path string) (int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s for text extraction: %w", path, err)
	}
	defer f.Close()

	count := 0
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A page the extractor cannot read is counted as textless, not
			// as a failure of the whole file.
			continue
		}
		if strings.TrimSpace(text) != "" {
			count++
		}
	}
	return count, nil
}

// Describe renders the result the way the console reports it.
func (r Result) Describe() string {
	if r.HasText {
		return fmt.Sprintf("%s: %d pages, text layer on %d", r.Path, r.Pages, r.TextPages)
	}
	return fmt.Sprintf("%s: %d pages, no text layer (not searchable)", r.Path, r.Pages)
}
