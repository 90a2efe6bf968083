package knowledge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// fetchTimeout bounds one page retrieval.
const fetchTimeout = 30 * time.Second

// Article is the readable content extracted from a web page.
type Article struct {
	Title string
	Text  string
}

// FetchArticle retrieves a web page and extracts its readable text,
// stripping navigation, ads, and markup. The result feeds straight into
// Ingestor.Ingest.
func FetchArticle(ctx context.Context, client *http.Client, rawURL string) (Article, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Article{}, fmt.Errorf("parsing URL %q: %w", rawURL, err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return Article{}, fmt.Errorf("unsupported URL scheme %q", pageURL.Scheme)
	}

	if client == nil {
		client = http.DefaultClient
	}

	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Article{}, fmt.Errorf("building request for %q: %w", rawURL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Article{}, fmt.Errorf("fetching %q: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Article{}, fmt.Errorf("fetching %q: status %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("extracting content from %q: %w", rawURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return Article{}, fmt.Errorf("no readable content at %q", rawURL)
	}

	return Article{Title: article.Title, Text: text}, nil
}
