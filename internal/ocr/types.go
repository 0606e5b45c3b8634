// Package ocr recovers text from scanned PDFs by rendering pages with
// Ghostscript and reading them back with Tesseract.
package ocr

import "context"

// Extractor is the OCR surface used by the PDF service.
type Extractor interface {
	// Available reports whether both external tools can be executed.
	Available(ctx context.Context) bool
	// ExtractPDFText renders every page of the PDF and returns the recognised text.
	ExtractPDFText(ctx context.Context, pdf []byte) (string, error)
}

// Config holds configuration for the OCR client.
type Config struct {
	// TesseractPath is the path to the tesseract executable
	TesseractPath string
	// GhostscriptPath is the path to the gs executable
	GhostscriptPath string
	// DataPath is the tessdata directory (optional)
	DataPath string
	// Languages passed to tesseract, e.g. "eng" or "eng+deu"
	Languages string
	// DPI used when rasterising pages
	DPI int
}

func DefaultConfig() *Config {
	return &Config{
		TesseractPath:   "tesseract",
		GhostscriptPath: "gs",
		Languages:       "eng",
		DPI:             300,
	}
}

// PageText is the OCR output of a single rendered page.
type PageText struct {
	PageNumber int
	Text       string
}
