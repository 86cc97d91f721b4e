package crawler

import (
	"context"
	"fmt"
	"time"

	"compliance-rag-assistant/models"
)

// SourceConfig lists everything one ingestion run reads.
type SourceConfig struct {
	URLs     []string
	Files    []string
	Selector string
	RenderJS bool
	Timeout  time.Duration
}

// LoadSources fetches every URL, then every file, in order. The first
// failure aborts the run so a partial corpus is never indexed.
func LoadSources(ctx context.Context, cfg SourceConfig) ([]models.Document, error) {
	docs := make([]models.Document, 0, len(cfg.URLs)+len(cfg.Files))
	for _, u := range cfg.URLs {
		doc, err := FetchPage(ctx, FetchConfig{
			URL:      u,
			Selector: cfg.Selector,
			Timeout:  cfg.Timeout,
			RenderJS: cfg.RenderJS,
		})
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	for _, path := range cfg.Files {
		doc, err := LoadFile(ctx, path, cfg.Selector)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no sources configured: set SOURCE_URLS or SOURCE_FILES")
	}
	return docs, nil
}
