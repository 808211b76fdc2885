package llm

import (
	"context"
	"errors"
	"fmt"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/ta"
	"deriv-signal-bot/internal/types"
)

const DefaultModel = "gemini-2.5-flash"

// Adapter turns market context into a validated decision through an Oracle.
type Adapter struct {
	oracle interfaces.Oracle
	model  string
	params ta.Params
}

var _ interfaces.Decider = (*Adapter)(nil)

type AdapterOption func(*Adapter)

// WithIndicatorParams overrides the periods used for the prompt's indicator snapshot.
func WithIndicatorParams(p ta.Params) AdapterOption {
	return func(a *Adapter) { a.params = p }
}

func NewAdapter(oracle interfaces.Oracle, model string, opts ...AdapterOption) (*Adapter, error) {
	if oracle == nil {
		return nil, errors.New("llm: oracle is required")
	}
	if model == "" {
		model = DefaultModel
	}
	a := &Adapter{oracle: oracle, model: model, params: ta.DefaultParams()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Model() string { return a.model }

// Decide builds the prompt, asks the oracle once and parses the reply.
// Oracle failures are wrapped; unusable replies surface as *ValidationError.
func (a *Adapter) Decide(ctx context.Context, mc types.MarketContext) (types.Decision, error) {
	if len(mc.Candles) == 0 {
		return types.Decision{}, errors.New("llm: market context has no candles")
	}

	prompt := buildPrompt(mc, a.params)
	text, err := a.oracle.Complete(ctx, prompt, a.model)
	if err != nil {
		return types.Decision{}, fmt.Errorf("oracle %s: %w", a.model, err)
	}
	return ParseDecision(text)
}
