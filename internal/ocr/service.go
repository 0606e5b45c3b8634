package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client runs Ghostscript and Tesseract as subprocesses.
type Client struct {
	config *Config
	log    *zap.Logger
}

var _ Extractor = (*Client)(nil)

func NewClient(config *Config, log *zap.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DPI <= 0 {
		config.DPI = DefaultConfig().DPI
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{config: config, log: log}
}

// Available checks that both gs and tesseract respond to --version.
func (c *Client) Available(ctx context.Context) bool {
	for _, bin := range []string{c.config.GhostscriptPath, c.config.TesseractPath} {
		if bin == "" {
			return false
		}
		if err := exec.CommandContext(ctx, bin, "--version").Run(); err != nil {
			return false
		}
	}
	return true
}

// ExtractPDFText renders the PDF to PNG pages and runs tesseract on each page.
// Pages are joined with a blank line in page order.
func (c *Client) ExtractPDFText(ctx context.Context, pdf []byte) (string, error) {
	if len(pdf) == 0 {
		return "", errors.New("empty pdf")
	}

	tempDir, err := os.MkdirTemp("", "quizgenius-ocr-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp dir")
	}
	defer os.RemoveAll(tempDir)

	pdfPath := filepath.Join(tempDir, "input.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o600); err != nil {
		return "", errors.Wrap(err, "failed to write temp pdf")
	}

	images, err := c.RenderPages(ctx, pdfPath, tempDir)
	if err != nil {
		return "", err
	}

	pages := make([]PageText, 0, len(images))
	for i, img := range images {
		text, err := c.ExtractText(ctx, img)
		if err != nil {
			return "", errors.Wrapf(err, "ocr page %d", i+1)
		}
		pages = append(pages, PageText{PageNumber: i + 1, Text: text})
	}

	c.log.Debug("ocr finished", zap.Int("pages", len(pages)))
	return JoinPages(pages), nil
}

// RenderPages rasterises every page of pdfPath into outDir and returns the
// image paths in page order.
func (c *Client) RenderPages(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	outputPattern := filepath.Join(outDir, "page-%03d.png")
	cmd := exec.CommandContext(ctx, c.config.GhostscriptPath,
		"-dQUIET",
		"-dSAFER",
		"-dNOPAUSE",
		"-dBATCH",
		"-sDEVICE=pnggray",
		fmt.Sprintf("-r%d", c.config.DPI),
		fmt.Sprintf("-sOutputFile=%s", outputPattern),
		pdfPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		c.log.Warn("ghostscript render failed", zap.Error(err), zap.String("stderr", stderr.String()))
		return nil, errors.Wrap(err, "ghostscript render failed")
	}

	images, err := filepath.Glob(filepath.Join(outDir, "page-*.png"))
	if err != nil {
		return nil, errors.Wrap(err, "list rendered pages")
	}
	if len(images) == 0 {
		return nil, errors.New("ghostscript produced no pages")
	}
	sort.Strings(images)
	return images, nil
}

// ExtractText runs tesseract on a single image and returns trimmed stdout.
func (c *Client) ExtractText(ctx context.Context, imagePath string) (string, error) {
	args := []string{imagePath, "stdout"}
	if c.config.Languages != "" {
		args = append(args, "-l", c.config.Languages)
	}
	if c.config.DataPath != "" {
		args = append(args, "--tessdata-dir", c.config.DataPath)
	}

	cmd := exec.CommandContext(ctx, c.config.TesseractPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		c.log.Warn("tesseract command failed", zap.Error(err), zap.String("stderr", stderr.String()))
		return "", errors.Wrap(err, "tesseract command failed")
	}
	return strings.TrimSpace(stdout.String()), nil
}

// JoinPages concatenates non-empty page texts.
func JoinPages(pages []PageText) string {
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	var b strings.Builder
	for _, p := range pages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String()
}
