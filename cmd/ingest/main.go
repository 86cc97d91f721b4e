// Command ingest builds or extends the vector index from the configured
// sources. Flags override SOURCE_URLS, SOURCE_FILES and CONTENT_SELECTOR.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"compliance-rag-assistant/internal/app"
	"compliance-rag-assistant/internal/config"
	"compliance-rag-assistant/internal/logger"
	"compliance-rag-assistant/models"
)

func main() {
	urls := flag.String("urls", "", "comma separated page URLs to ingest")
	files := flag.String("files", "", "comma separated local files (.txt, .md, .html, .pdf, .xlsx)")
	selector := flag.String("selector", "", "CSS selector for the content region")
	renderJS := flag.Bool("render-js", false, "render pages in headless Chrome before extraction")
	rebuild := flag.Bool("rebuild", false, "replace the existing index instead of extending it")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	logger.InitLogger(cfg)

	if *urls != "" || *files != "" {
		cfg.SourceURLs = splitList(*urls)
		cfg.SourceFiles = splitList(*files)
	}
	if *selector != "" {
		cfg.ContentSelector = *selector
	}
	if *renderJS {
		cfg.RenderJS = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, chunks, err := app.RunIngest(ctx, cfg, *rebuild)
	if err != nil {
		if errors.Is(err, models.ErrDimensionMismatch) {
			logger.Error("Index was built with another embedding model, run with -rebuild", "index_path", cfg.IndexPath)
		}
		log.Fatal("Ingestion failed: ", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	fmt.Fprintf(os.Stderr, "index %s now holds %d chunks\n", cfg.IndexPath, chunks)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
