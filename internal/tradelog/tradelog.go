package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"deriv-signal-bot/internal/types"
)

// RunEntry is one completed backtest in the journal.
type RunEntry struct {
	RunID   string                `json:"run_id"`
	Time    string                `json:"time"`
	Request RunRequest            `json:"request"`
	Report  *types.BacktestReport `json:"report"`
}

type RunRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Start     int64  `json:"start,omitempty"`
	End       int64  `json:"end,omitempty"`
}

// DecisionEntry is one live oracle decision taken on a closed candle.
type DecisionEntry struct {
	Time       string  `json:"time"`
	Symbol     string  `json:"symbol"`
	Timeframe  string  `json:"timeframe"`
	Epoch      int64   `json:"epoch"`
	Price      float64 `json:"price"`
	Signal     string  `json:"signal"`
	Confidence float64 `json:"confidence"`
	TP         float64 `json:"tp"`
	SL         float64 `json:"sl"`
	Reason     string  `json:"reason"`
	Sentiment  string  `json:"sentiment,omitempty"`
}

// Journal appends JSON lines to one file per UTC day.
type Journal struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

func New(dir string) *Journal {
	if dir == "" {
		dir = "journal"
	}
	return &Journal{dir: dir, now: time.Now}
}

func (j *Journal) Dir() string { return j.dir }

// NewRunID returns a fresh identifier for a backtest run.
func NewRunID() string {
	return uuid.NewString()
}

func (j *Journal) runsPath(t time.Time) string {
	return filepath.Join(j.dir, "runs", t.UTC().Format("2006-01-02")+".jsonl")
}

func (j *Journal) decisionsPath(t time.Time) string {
	return filepath.Join(j.dir, "decisions", t.UTC().Format("2006-01-02")+".jsonl")
}

func (j *Journal) AppendRun(runID string, req types.BacktestRequest, report *types.BacktestReport) error {
	now := j.now()
	e := RunEntry{
		RunID:   runID,
		Time:    now.UTC().Format(time.RFC3339),
		Request: RunRequest{Symbol: req.Symbol, Timeframe: req.Timeframe},
		Report:  report,
	}
	if req.Range != nil {
		e.Request.Start, e.Request.End = req.Range.Start, req.Range.End
	}
	return j.appendLine(j.runsPath(now), e)
}

func (j *Journal) AppendDecision(e DecisionEntry) error {
	now := j.now()
	e.Time = now.UTC().Format(time.RFC3339)
	return j.appendLine(j.decisionsPath(now), e)
}

func (j *Journal) appendLine(p string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips journal files untouched for more than retentionDays and
// removes the originals. It returns the number of files compressed.
func (j *Journal) CompressOlder(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().AddDate(0, 0, -retentionDays)
	compressed := 0
	err := filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		compressed++
		return os.Remove(p)
	})
	return compressed, err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
