package news

import (
	"context"
	"fmt"
	"sync"
	"time"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/logger"
	"deriv-signal-bot/internal/store"
	"deriv-signal-bot/internal/types"
)

// HeadlineSource fetches raw headlines for a symbol.
type HeadlineSource interface {
	Headlines(ctx context.Context, symbol string) ([]string, error)
}

// Service scores scraped headlines and caches the result per symbol.
type Service struct {
	source   HeadlineSource
	analyzer *Analyzer
	cache    *sentimentCache
}

var _ interfaces.SentimentProvider = (*Service)(nil)

func NewService(source HeadlineSource, ttl time.Duration) *Service {
	return &Service{
		source:   source,
		analyzer: NewAnalyzer(),
		cache:    newSentimentCache(ttl),
	}
}

// NewProvider builds the provider selected by news.provider.
func NewProvider(cfg *store.Config) (interfaces.SentimentProvider, error) {
	switch cfg.News.Provider {
	case "mock":
		return NewMockProvider(cfg.News.Seed), nil
	case "scrape":
		sources := make([]Source, 0, len(cfg.News.Sources))
		for _, raw := range cfg.News.Sources {
			src, err := ParseSource(raw)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		}
		scraper := NewScraper(sources, 15*time.Second, cfg.News.MaxHeadlines)
		return NewService(scraper, time.Duration(cfg.News.CacheMinutes)*time.Minute), nil
	default:
		return nil, fmt.Errorf("unknown news provider %q", cfg.News.Provider)
	}
}

func (s *Service) Sentiment(ctx context.Context, symbol string) (*types.Sentiment, error) {
	if cached, ok := s.cache.get(symbol); ok {
		logger.Debug(ctx, "Using cached sentiment", "symbol", symbol, "overall", cached.Overall)
		return cached, nil
	}

	headlines, err := s.source.Headlines(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch headlines for %s: %w", symbol, err)
	}

	sent := s.analyzer.Analyze(headlines)
	logger.Info(ctx, "Sentiment analysis completed",
		"symbol", symbol,
		"overall", sent.Overall,
		"score", sent.Score,
		"headlines", len(headlines),
	)
	s.cache.set(symbol, &sent)
	return &sent, nil
}

// ClearCache drops every cached result.
func (s *Service) ClearCache() {
	s.cache.clear()
}

type sentimentCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry struct {
	sentiment *types.Sentiment
	stored    time.Time
}

func newSentimentCache(ttl time.Duration) *sentimentCache {
	return &sentimentCache{
		data: make(map[string]cacheEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (c *sentimentCache) get(symbol string) (*types.Sentiment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[symbol]
	if !ok || c.now().Sub(entry.stored) > c.ttl {
		return nil, false
	}
	cp := *entry.sentiment
	return &cp, true
}

// set stores a result and prunes expired entries.
func (c *sentimentCache) set(symbol string, s *types.Sentiment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.data {
		if now.Sub(e.stored) > c.ttl {
			delete(c.data, k)
		}
	}
	cp := *s
	c.data[symbol] = cacheEntry{sentiment: &cp, stored: now}
}

func (c *sentimentCache) clear() {
	c.mu.Lock()
	c.data = make(map[string]cacheEntry)
	c.mu.Unlock()
}
