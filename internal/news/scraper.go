package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/sync/errgroup"

	"deriv-signal-bot/internal/api"
	"deriv-signal-bot/internal/logger"
)

const defaultHeadlineSelector = "h1, h2, h3, item > title"

// Source is one news page. URL may contain {query}, replaced by the search term for a symbol.
type Source struct {
	Name     string
	URL      string
	Selector string
}

// ParseSource accepts "url" or "name|url|selector".
func ParseSource(raw string) (Source, error) {
	parts := strings.Split(raw, "|")
	src := Source{URL: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		src.Name = strings.TrimSpace(parts[0])
		src.URL = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		src.Selector = strings.TrimSpace(parts[2])
	}
	if src.Selector == "" {
		src.Selector = defaultHeadlineSelector
	}
	u, err := url.Parse(strings.ReplaceAll(src.URL, "{query}", "x"))
	if err != nil || u.Hostname() == "" {
		return Source{}, fmt.Errorf("invalid news source %q", raw)
	}
	if src.Name == "" {
		src.Name = u.Hostname()
	}
	return src, nil
}

// Scraper collects headlines from several sources concurrently.
type Scraper struct {
	sources []Source
	timeout time.Duration
	max     int
}

func NewScraper(sources []Source, timeout time.Duration, maxHeadlines int) *Scraper {
	return &Scraper{sources: sources, timeout: timeout, max: maxHeadlines}
}

// Headlines returns up to max unique headlines, in source order. A failing
// source is logged and skipped; the call fails only when every source fails.
func (s *Scraper) Headlines(ctx context.Context, symbol string) ([]string, error) {
	if len(s.sources) == 0 {
		return nil, fmt.Errorf("no news sources configured")
	}
	query := SearchTerm(symbol)

	results := make([][]string, len(s.sources))
	var (
		mu       sync.Mutex
		failures int
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		g.Go(func() error {
			got, err := s.scrapeSource(gctx, src, query)
			if err != nil {
				logger.ErrorWithErr(gctx, "Failed to scrape source", err, "source", src.Name, "symbol", symbol)
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				return nil
			}
			results[i] = got
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failures == len(s.sources) {
		return nil, fmt.Errorf("all news sources failed: %w", lastErr)
	}

	seen := make(map[string]bool)
	var out []string
	for _, hs := range results {
		for _, h := range hs {
			if seen[h] {
				continue
			}
			seen[h] = true
			out = append(out, h)
			if s.max > 0 && len(out) == s.max {
				return out, nil
			}
		}
	}
	logger.Debug(ctx, "News scraping completed", "symbol", symbol, "headlines", len(out))
	return out, nil
}

func (s *Scraper) scrapeSource(ctx context.Context, src Source, query string) ([]string, error) {
	target := strings.ReplaceAll(src.URL, "{query}", url.QueryEscape(query))

	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
	)
	if s.timeout > 0 {
		c.SetRequestTimeout(s.timeout)
	}

	c.OnRequest(func(r *colly.Request) {
		for k, v := range api.BrowserHeaders() {
			r.Headers.Set(k, v)
		}
	})

	var headlines []string
	var parseErr error
	c.OnResponse(func(r *colly.Response) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(r.Body)))
		if err != nil {
			parseErr = err
			return
		}
		headlines = extractHeadlines(doc, src.Selector)
	})

	if err := c.Visit(target); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", target, err)
	}
	c.Wait()
	if parseErr != nil {
		return nil, parseErr
	}
	return headlines, nil
}

func extractHeadlines(doc *goquery.Document, selector string) []string {
	var out []string
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if len(text) < 12 {
			return
		}
		out = append(out, text)
	})
	return out
}

// SearchTerm maps a Deriv symbol to a news search query.
func SearchTerm(symbol string) string {
	switch {
	case strings.HasPrefix(symbol, "frx"), strings.HasPrefix(symbol, "cry"):
		return strings.TrimPrefix(strings.TrimPrefix(symbol, "frx"), "cry")
	case strings.HasPrefix(symbol, "R_"):
		return "Volatility " + strings.TrimPrefix(symbol, "R_") + " Index"
	case strings.HasPrefix(symbol, "1HZ"):
		return "Volatility " + strings.TrimSuffix(strings.TrimPrefix(symbol, "1HZ"), "V") + " (1s) Index"
	default:
		return symbol
	}
}
