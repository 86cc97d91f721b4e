// Package crawler loads source documents for ingestion: single web pages
// restricted to a CSS-selected region, and local files.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"compliance-rag-assistant/internal/logger"
	"compliance-rag-assistant/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	colly "github.com/gocolly/colly/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html/charset"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

var (
	// Global HTTP transport with compression enabled
	httpTransport = &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		DisableCompression: false,
	}
)

// FetchConfig describes one page to load.
type FetchConfig struct {
	URL string
	// Selector keeps only the matching elements' text. Empty means the
	// page's main content.
	Selector string
	Timeout  time.Duration
	// Optional JS rendering before extraction
	RenderJS         bool
	RenderTimeout    time.Duration
	WaitSelector     string
	NetworkIdleAfter time.Duration
}

// normalizeURL normalizes a URL to a canonical form used as the document source
func normalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + rawURL)
		if err != nil {
			return "", err
		}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	parsed.Fragment = ""
	if parsed.Path != "/" {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	// Remove default ports
	if (parsed.Port() == "80" && parsed.Scheme == "http") || (parsed.Port() == "443" && parsed.Scheme == "https") {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}

	return parsed.String(), nil
}

// FetchPage downloads one page and returns the text of the selected region.
// A selector that matches nothing yields a document with empty content.
func FetchPage(ctx context.Context, cfg FetchConfig) (*models.Document, error) {
	source, err := normalizeURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", cfg.URL, err)
	}

	ctx, span := otel.Tracer("crawler").Start(ctx, "crawler.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("crawler.url", source),
		attribute.String("crawler.selector", cfg.Selector),
		attribute.Bool("crawler.render_js", cfg.RenderJS),
	)

	doc, err := fetchPage(ctx, source, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("crawler.content_chars", len(doc.Content)))
	return doc, nil
}

func fetchPage(ctx context.Context, source string, cfg FetchConfig) (*models.Document, error) {
	if cfg.RenderJS {
		doc, err := fetchRendered(ctx, source, cfg)
		if err == nil {
			return doc, nil
		}
		logger.Warn("JS render failed, falling back to plain fetch", "url", source, "error", err)
	}

	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
		colly.UserAgent(userAgent),
	)
	c.WithTransport(httpTransport)
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	} else {
		c.SetRequestTimeout(60 * time.Second)
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, br")
	})

	var (
		doc      *models.Document
		fetchErr error
	)

	c.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
			fetchErr = fmt.Errorf("unsupported content type %q", contentType)
			return
		}
		body, err := decodeBody(r.Body, r.Headers.Get("Content-Encoding"), contentType)
		if err != nil {
			fetchErr = err
			return
		}
		r.Body = body
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		if fetchErr != nil {
			return
		}
		doc = buildDocument(source, e.DOM, cfg.Selector)
	})

	c.OnError(func(r *colly.Response, err error) {
		switch status := r.StatusCode; {
		case status == http.StatusForbidden:
			fetchErr = fmt.Errorf("access forbidden (403) for %s: the website blocked the crawler", source)
		case status == http.StatusTooManyRequests:
			fetchErr = fmt.Errorf("rate limited (429) by %s: wait and try again later", source)
		case status >= 400:
			fetchErr = fmt.Errorf("HTTP error (%d) for %s: %w", status, source, err)
		default:
			fetchErr = fmt.Errorf("failed to fetch %s: %w", source, err)
		}
	})

	logger.Info("Fetching page", "url", source, "selector", cfg.Selector)
	if err := c.Visit(source); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("failed to fetch %s: %w", source, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if doc == nil {
		return nil, fmt.Errorf("no HTML document at %s", source)
	}
	return doc, nil
}

// decodeBody undoes brotli encoding and converts the body to UTF-8 unless
// it already is. gzip is handled before this point, brotli is not.
func decodeBody(body []byte, contentEncoding, contentType string) ([]byte, error) {
	if strings.Contains(contentEncoding, "br") {
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli decode: %w", err)
		}
		body = decompressed
	}
	if len(body) == 0 || utf8.Valid(body) {
		return body, nil
	}
	utf8Reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		// unknown charset, assume UTF-8
		return body, nil
	}
	decoded, err := io.ReadAll(utf8Reader)
	if err != nil || len(decoded) == 0 {
		return body, nil
	}
	return decoded, nil
}

func buildDocument(source string, sel *goquery.Selection, selector string) *models.Document {
	title := strings.TrimSpace(sel.Find("title").First().Text())
	content, matched := extractContent(sel, selector)
	if selector != "" && !matched {
		logger.Warn("Content selector matched nothing", "url", source, "selector", selector)
	}
	meta := map[string]string{models.MetaSource: source}
	if title != "" {
		meta[models.MetaTitle] = title
	}
	return &models.Document{
		Source:    source,
		Title:     title,
		Content:   content,
		Metadata:  meta,
		FetchedAt: time.Now().UTC(),
	}
}
