package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"compliance-rag-assistant/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

func fetchRendered(ctx context.Context, source string, cfg FetchConfig) (*models.Document, error) {
	renderTimeout := cfg.RenderTimeout
	if renderTimeout <= 0 {
		renderTimeout = 45 * time.Second
	}
	networkIdle := cfg.NetworkIdleAfter
	if networkIdle <= 0 {
		networkIdle = 1200 * time.Millisecond
	}
	waitSelector := cfg.WaitSelector
	if waitSelector == "" {
		waitSelector = cfg.Selector
	}

	html, err := renderPageHTML(ctx, source, renderTimeout, waitSelector, networkIdle)
	if err != nil {
		return nil, err
	}
	page, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return buildDocument(source, page.Selection, cfg.Selector), nil
}

// renderPageHTML launches a headless browser, waits for readiness and network idle, then returns HTML
func renderPageHTML(ctx context.Context, urlStr string, timeout time.Duration, waitSelector string, networkIdleAfter time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(urlStr)); err != nil {
		return "", err
	}

	// Readiness, selector and idle waits are soft failures.
	softRun(browserCtx, 10*time.Second, chromedp.WaitReady("body", chromedp.ByQuery))
	if waitSelector != "" {
		softRun(browserCtx, 15*time.Second, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
	}
	if networkIdleAfter > 0 {
		idleCap := min(networkIdleAfter, 5*time.Second)
		softRun(browserCtx, idleCap+time.Second, waitForNetworkIdle(idleCap))
	}

	var html string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func softRun(ctx context.Context, timeout time.Duration, action chromedp.Action) {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_ = chromedp.Run(stepCtx, action)
}

// waitForNetworkIdle waits until no network requests are in flight for the given duration
func waitForNetworkIdle(d time.Duration) chromedp.ActionFunc {
	js := `(function(waitMs){
      return new Promise((resolve)=>{
        if (!('PerformanceObserver' in window)) {
          setTimeout(resolve, waitMs);
          return;
        }
        let last = Date.now();
        const obs = new PerformanceObserver(()=>{ last = Date.now(); });
        try { obs.observe({entryTypes:['resource','navigation']}); } catch(e) {}
        const tick = () => {
          if (Date.now()-last >= waitMs) { try { obs.disconnect(); } catch(e){} resolve(); return; }
          setTimeout(tick, 100);
        };
        tick();
      });
    })(%d);`
	return func(ctx context.Context) error {
		return chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(js, int(d.Milliseconds())), nil))
	}
}
