package news

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/types"
)

const (
	Bullish = "Bullish"
	Bearish = "Bearish"
	Neutral = "Neutral"
)

var moods = []string{Bullish, Bearish, Neutral}

// MockProvider simulates a news feed: a random mood and three canned headlines.
type MockProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var _ interfaces.SentimentProvider = (*MockProvider)(nil)

// NewMockProvider returns a provider whose sequence of moods is fixed by seed.
func NewMockProvider(seed int64) *MockProvider {
	return &MockProvider{rng: rand.New(rand.NewSource(seed))}
}

func (m *MockProvider) Sentiment(ctx context.Context, symbol string) (*types.Sentiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	mood := moods[m.rng.Intn(len(moods))]
	m.mu.Unlock()

	return &types.Sentiment{
		Overall: mood,
		Score:   moodScore(mood),
		Headlines: []string{
			fmt.Sprintf("BREAKING: %s shows unexpected volatility after recent announcements.", symbol),
			fmt.Sprintf("Analysts predict a %s trend for %s this week.", lower(mood), symbol),
			fmt.Sprintf("Social media buzz around %s is currently mixed.", symbol),
		},
	}, nil
}

func moodScore(mood string) float64 {
	switch mood {
	case Bullish:
		return 1
	case Bearish:
		return -1
	default:
		return 0
	}
}
