// Package scrape pulls full article text for items whose feed entry
// carried no usable excerpt, so classification and generation have more
// to work with than a bare title.
package scrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Article is the extracted page content.
type Article struct {
	Title   string
	Content string
	URL     string
}

// Extractor fetches and extracts article text.
type Extractor struct {
	http *http.Client
}

// New builds an extractor with a per-request timeout.
func New(timeout time.Duration) *Extractor {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Extractor{http: &http.Client{Timeout: timeout}}
}

// Content selectors tried in order; the first that yields paragraphs wins.
var selectors = []string{
	"article p",
	".article-body p",
	".post-content p",
	".content p",
	"main p",
}

// Extract downloads the page and pulls the article body out of it.
func (e *Extractor) Extract(ctx context.Context, url string) (*Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; aidigest/1.0)")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, nav, footer, header, aside").Remove()

	content := extractParagraphs(doc)
	if content == "" {
		content = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	}
	if content == "" {
		return nil, fmt.Errorf("no content extracted")
	}

	return &Article{Title: title, Content: content, URL: url}, nil
}

func extractParagraphs(doc *goquery.Document) string {
	for _, selector := range selectors {
		var paragraphs []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 10 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > 0 {
			return strings.Join(paragraphs, "\n\n")
		}
	}
	return ""
}
