package eod

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"deriv-signal-bot/internal/interfaces"
	"deriv-signal-bot/internal/types"
)

// Exporter writes backtest trade logs as CSV files, one per run.
type Exporter struct {
	dir string
}

var _ interfaces.ReportExporter = (*Exporter)(nil)

func NewExporter(dir string) *Exporter {
	if dir == "" {
		dir = "reports"
	}
	return &Exporter{dir: dir}
}

var headers = []string{"direction", "entry_time", "exit_time", "entry", "exit", "tp", "sl", "pnl", "balance", "outcome"}

// Export writes <dir>/<symbol>-<runID>.csv and returns its path. The last row
// carries the run totals.
func (e *Exporter) Export(runID string, report *types.BacktestReport) (string, error) {
	if report == nil {
		return "", fmt.Errorf("nil report")
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", err
	}

	outPath := filepath.Join(e.dir, fileName(report.Symbol, runID))
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(headers); err != nil {
		return "", err
	}
	for _, t := range report.TradeLog {
		rec := []string{
			string(t.Direction),
			epochUTC(t.EntryEpoch),
			epochUTC(t.ExitEpoch),
			num(t.Entry),
			num(t.Exit),
			num(t.TP),
			num(t.SL),
			fmt.Sprintf("%.2f", t.PnL),
			fmt.Sprintf("%.2f", t.Balance),
			t.Outcome,
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	total := []string{
		"TOTAL", "", "", "", "", "", "",
		fmt.Sprintf("%.2f", report.NetPnL),
		fmt.Sprintf("%.2f", report.FinalBalance),
		fmt.Sprintf("%d/%d", report.Wins, report.Trades),
	}
	if err := w.Write(total); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, out.Close()
}

func fileName(symbol, runID string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, symbol)
	if clean == "" {
		clean = "backtest"
	}
	return clean + "-" + runID + ".csv"
}

func epochUTC(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format("2006-01-02 15:04:05")
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
