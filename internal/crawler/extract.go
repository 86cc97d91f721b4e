package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const noiseSelectors = "script, style, noscript, template, nav, footer, header, aside, .nav, .navbar, .footer, .header, .sidebar, .advertisement, .ads, .skip-link"

// extractContent returns the cleaned text of the elements matching
// selector, one block per element. With an empty selector it falls back to
// the page's main content. matched is false when selector found nothing.
func extractContent(sel *goquery.Selection, selector string) (string, bool) {
	if selector == "" {
		return extractMainContentFromSelection(sel), true
	}

	root := sel.Clone()
	root.Find("script, style, noscript, template").Remove()

	var blocks []string
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := cleanText(blockText(s)); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return "", root.Find(selector).Length() > 0
	}
	return strings.Join(blocks, "\n\n"), true
}

// extractMainContentFromSelection extracts main content from a goquery Selection
func extractMainContentFromSelection(selection *goquery.Selection) string {
	doc := selection.Clone()
	doc.Find(noiseSelectors).Remove()

	// Try semantic HTML5 elements first
	contentSelectors := []string{
		"main",
		"article",
		"[role='main']",
		".main-content",
		".content",
		"#content",
		"body",
	}

	for _, selector := range contentSelectors {
		var blocks []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := cleanText(blockText(s))
			if len(text) > 100 {
				blocks = append(blocks, text)
			}
		})
		if len(blocks) > 0 {
			return strings.Join(blocks, "\n\n")
		}
	}
	return cleanText(blockText(doc.Find("body")))
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "table": true, "ul": true, "ol": true, "br": true,
	"blockquote": true, "pre": true, "dd": true, "dt": true,
}

// blockText is Selection.Text with line breaks after block-level
// elements, so paragraphs stay separable for the splitter.
func blockText(s *goquery.Selection) string {
	var sb strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				sb.WriteString(c.Text())
				return
			}
			walk(c)
			if blockElements[goquery.NodeName(c)] {
				sb.WriteString("\n")
			}
		})
	}
	walk(s)
	return sb.String()
}

// cleanText collapses runs of spaces inside lines and drops blank lines.
func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
