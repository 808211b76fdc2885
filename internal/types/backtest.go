package types

// BacktestStatus follows idle → fetching → running → complete|error.
type BacktestStatus string

const (
	BacktestIdle     BacktestStatus = "idle"
	BacktestFetching BacktestStatus = "fetching"
	BacktestRunning  BacktestStatus = "running"
	BacktestComplete BacktestStatus = "complete"
	BacktestError    BacktestStatus = "error"
)

// BacktestRequest selects the data a run replays.
type BacktestRequest struct {
	Symbol    string
	Timeframe string
	Range     *TimeRange
}

// ClosedTrade is one round trip in the simulation.
type ClosedTrade struct {
	Direction  Signal  `json:"direction"`
	EntryEpoch int64   `json:"entry_epoch"`
	ExitEpoch  int64   `json:"exit_epoch"`
	Entry      float64 `json:"entry"`
	Exit       float64 `json:"exit"`
	TP         float64 `json:"tp"`
	SL         float64 `json:"sl"`
	PnL        float64 `json:"pnl"`
	Balance    float64 `json:"balance"`
	Outcome    string  `json:"outcome"` // WIN or LOSS
}

// BacktestReport is produced once a run completes and never modified afterwards.
type BacktestReport struct {
	Symbol         string        `json:"symbol"`
	Timeframe      string        `json:"timeframe"`
	Bars           int           `json:"bars"`
	InitialBalance float64       `json:"initial_balance"`
	FinalBalance   float64       `json:"final_balance"`
	NetPnL         float64       `json:"net_pnl"`
	WinRate        float64       `json:"win_rate"`
	Trades         int           `json:"trades"`
	Wins           int           `json:"wins"`
	Losses         int           `json:"losses"`
	MaxDrawdown    float64       `json:"max_drawdown"`
	TradeLog       []ClosedTrade `json:"trade_log"`
	Events         []string      `json:"events"`
}

// BacktestProgress is reported once per processed bar.
type BacktestProgress struct {
	Processed int
	Total     int
}

// Fraction returns Processed/Total in [0,1].
func (p BacktestProgress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.Total)
}
