package crawler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"compliance-rag-assistant/internal/logger"
	"compliance-rag-assistant/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// maxFileSize caps in-memory extraction.
const maxFileSize = 200 << 20

// SupportedExtensions lists the file types LoadFile understands.
var SupportedExtensions = []string{".txt", ".md", ".html", ".htm", ".pdf", ".xlsx"}

// LoadFile extracts text from a local file. selector applies to HTML files
// only.
func LoadFile(ctx context.Context, path, selector string) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if stat.Size() > maxFileSize {
		return nil, fmt.Errorf("%s too large for in-memory extraction", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	source := "file://" + filepath.ToSlash(abs)
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var content string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		content = strings.ReplaceAll(string(data), "\r\n", "\n")
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		page, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		doc := buildDocument(source, page.Selection, selector)
		if doc.Title == "" {
			doc.Title = title
			doc.Metadata[models.MetaTitle] = title
		}
		return doc, nil
	case ".pdf":
		content, err = extractPDF(path)
	case ".xlsx":
		content, err = extractXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q (supported: %s)", ext, strings.Join(SupportedExtensions, ", "))
	}
	if err != nil {
		return nil, err
	}

	return &models.Document{
		Source:  source,
		Title:   title,
		Content: content,
		Metadata: map[string]string{
			models.MetaSource: source,
			models.MetaTitle:  title,
		},
		FetchedAt: time.Now().UTC(),
	}, nil
}

// extractPDF reads the plain text of every page, pages separated by a
// blank line.
func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF %s: %w", path, err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(make(map[string]*pdf.Font))
		if err != nil {
			logger.Warn("Failed to extract PDF page", "path", path, "page", i, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("no text extracted from %s", path)
	}
	return strings.Join(pages, "\n\n"), nil
}

// extractXLSX renders each sheet as a heading followed by one line per
// row, cells separated by " | ".
func extractXLSX(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	var sheets []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		lines := []string{sheet}
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				if cell = strings.TrimSpace(cell); cell != "" {
					cells = append(cells, cell)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " | "))
			}
		}
		if len(lines) > 1 {
			sheets = append(sheets, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(sheets, "\n\n"), nil
}
