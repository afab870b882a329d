// Package scraper fetches job board pages and extracts candidate listing
// URLs and per-listing detail fields.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Sentinel errors for scraper failures.
var (
	ErrSourceUnreachable = errors.New("source unreachable")
	ErrSourceParse       = errors.New("source parse error")
	ErrSourceTimeout     = errors.New("source fetch timeout")
)

// Detail holds best-effort fields extracted from a single listing page.
type Detail struct {
	Title       string
	Company     string
	Location    string
	Description string
}

// Client is the interface for discovering and fetching listings.
type Client interface {
	// ListCandidates returns candidate listing URLs found on a source page.
	ListCandidates(ctx context.Context, sourceURL string) ([]string, error)
	// FetchDetail extracts structured fields from one listing page.
	FetchDetail(ctx context.Context, listingURL string) (*Detail, error)
}

// HTTPClient implements Client by fetching pages over HTTP and parsing them
// with goquery.
type HTTPClient struct {
	userAgent     string
	maxCandidates int
	client        *http.Client
}

// NewHTTPClient creates a scraper client with a shared HTTP client.
func NewHTTPClient(userAgent string, maxCandidates int, timeout time.Duration) *HTTPClient {
	if maxCandidates <= 0 {
		maxCandidates = 100
	}
	return &HTTPClient{
		userAgent:     userAgent,
		maxCandidates: maxCandidates,
		client:        &http.Client{Timeout: timeout},
	}
}

// Path fragments that mark an anchor as a probable job posting link.
var jobPathHints = []string{"/job/", "/jobs/", "/careers/", "/position/", "/positions/", "/vacancy/", "/vacancies/", "/opening/", "/viewjob"}

func (c *HTTPClient) ListCandidates(ctx context.Context, sourceURL string) ([]string, error) {
	doc, base, err := c.fetchDocument(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var candidates []string

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return true
		}

		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref).String()

		if !looksLikeJobLink(abs) {
			return true
		}

		canonical, err := Canonicalize(abs)
		if err != nil || seen[canonical] {
			return true
		}
		seen[canonical] = true
		candidates = append(candidates, canonical)

		return len(candidates) < c.maxCandidates
	})

	return candidates, nil
}

func (c *HTTPClient) FetchDetail(ctx context.Context, listingURL string) (*Detail, error) {
	doc, _, err := c.fetchDocument(ctx, listingURL)
	if err != nil {
		return nil, err
	}

	d := &Detail{
		Title:    firstNonEmpty(metaContent(doc, "og:title"), strings.TrimSpace(doc.Find("h1").First().Text()), strings.TrimSpace(doc.Find("title").First().Text())),
		Company:  firstNonEmpty(metaContent(doc, "og:site_name"), strings.TrimSpace(doc.Find("[class*=company]").First().Text())),
		Location: strings.TrimSpace(doc.Find("[class*=location]").First().Text()),
	}

	desc := metaContent(doc, "og:description")
	if desc == "" {
		desc = strings.TrimSpace(doc.Find("[class*=description], article, main").First().Text())
	}
	d.Description = collapseWhitespace(desc)

	return d, nil
}

func (c *HTTPClient) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSourceParse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("%w: status %d fetching %s", ErrSourceUnreachable, resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSourceParse, err)
	}
	return doc, base, nil
}

func looksLikeJobLink(abs string) bool {
	lower := strings.ToLower(abs)
	for _, hint := range jobPathHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// classifyError maps transport errors onto scraper sentinels.
func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrSourceTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrSourceTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
}

var _ Client = (*HTTPClient)(nil)
