package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"quizgenius/internal/ocr"
)

// ocrThreshold is the extracted text length below which a PDF is treated as
// scanned and handed to OCR.
const ocrThreshold = 100

var (
	ErrEmptyPDF   = errors.New("pdf is empty")
	ErrInvalidPDF = errors.New("file is not a readable pdf")
)

// Extraction is the text pulled out of an uploaded PDF.
type Extraction struct {
	Text      string
	PageCount int
	UsedOCR   bool
}

type PDFService struct {
	ocr ocr.Extractor
	log *zap.Logger
}

// NewPDFService builds the text extractor. extractor may be nil to disable
// the OCR fallback.
func NewPDFService(extractor ocr.Extractor, log *zap.Logger) *PDFService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PDFService{ocr: extractor, log: log}
}

// ExtractText reads the text layer of every page. When it yields fewer than
// 100 characters and OCR is available, the OCR text is used instead.
func (s *PDFService) ExtractText(ctx context.Context, data []byte) (*Extraction, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPDF
	}

	text, pages, err := readTextLayer(data)
	if err != nil {
		return nil, err
	}
	result := &Extraction{Text: text, PageCount: pages}

	if len(strings.TrimSpace(text)) >= ocrThreshold || s.ocr == nil {
		return result, nil
	}
	if !s.ocr.Available(ctx) {
		s.log.Info("text layer is sparse but ocr tools are unavailable", zap.Int("chars", len(text)))
		return result, nil
	}

	s.log.Info("text layer is sparse, running ocr", zap.Int("chars", len(text)), zap.Int("pages", pages))
	ocrText, err := s.ocr.ExtractPDFText(ctx, data)
	if err != nil {
		s.log.Warn("ocr fallback failed", zap.Error(err))
		return result, nil
	}
	if len(strings.TrimSpace(ocrText)) > len(strings.TrimSpace(text)) {
		result.Text = ocrText
		result.UsedOCR = true
	}
	return result, nil
}

func readTextLayer(data []byte) (text string, pages int, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	pages = r.NumPage()
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), pages, nil
}
