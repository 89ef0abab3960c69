// Package document turns uploaded files into page documents and overlapping
// text chunks ready for embedding.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
)

const (
	MetaSource = "source"
	MetaPage   = "page"
)

// LoadPDF extracts the plain text of every page of the PDF at path. Pages
// without text are skipped. Each document carries the file name and the
// 1-based page number in its metadata.
func LoadPDF(path string) (docs []schema.Document, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	source := filepath.Base(path)
	// The pdf object resolver panics on a structurally corrupt page tree.
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("malformed pdf %s: %v", source, r)
		}
	}()

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf %s: %w", source, err)
	}

	numPages := reader.NumPage()
	docs = make([]schema.Document, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			log.Debug().Str("source", source).Int("page", i).Msg("Skipping page without text")
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: text,
			Metadata: map[string]any{
				MetaSource: source,
				MetaPage:   i,
			},
		})
	}
	return docs, nil
}
