package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"signalfolio/internal/logger"
	"signalfolio/types"

	"github.com/gocarina/gocsv"
)

const decisionSuffix = "_decisions.csv"

type decisionRow struct {
	Date   csvDate `csv:"date"`
	Action string  `csv:"action"`
}

// DecisionFileName is TICKER_strategy_decisions.csv.
func DecisionFileName(ticker, strategy string) string {
	return ticker + "_" + strategy + decisionSuffix
}

// ParseDecisionFileName splits a decision file name into its ticker and strategy.
// The ticker ends at the first underscore; the strategy may contain underscores.
func ParseDecisionFileName(name string) (ticker, strategy string, ok bool) {
	base, found := strings.CutSuffix(filepath.Base(name), decisionSuffix)
	if !found {
		return "", "", false
	}
	ticker, strategy, found = strings.Cut(base, "_")
	if !found || ticker == "" || strategy == "" {
		return "", "", false
	}
	return ticker, strategy, true
}

// DecisionDir reads and writes one decision file per (ticker, strategy).
type DecisionDir struct {
	dir        string
	strategies map[string]bool
}

// NewDecisionDir reads from dir. When strategies are given, only their files are loaded.
func NewDecisionDir(dir string, strategies ...string) *DecisionDir {
	d := &DecisionDir{dir: dir}
	if len(strategies) > 0 {
		d.strategies = make(map[string]bool, len(strategies))
		for _, s := range strategies {
			d.strategies[s] = true
		}
	}
	return d
}

func (d *DecisionDir) Dir() string {
	return d.dir
}

// Path is the file a (ticker, strategy) stream lives in.
func (d *DecisionDir) Path(ticker, strategy string) string {
	return filepath.Join(d.dir, DecisionFileName(ticker, strategy))
}

// Exists reports whether the (ticker, strategy) stream has already been written.
func (d *DecisionDir) Exists(ticker, strategy string) bool {
	_, err := os.Stat(d.Path(ticker, strategy))
	return err == nil
}

// Save writes the stream atomically, sorted by date.
func (d *DecisionDir) Save(ticker, strategy string, decisions []types.Decision) error {
	return writeAtomic(d.Path(ticker, strategy), func(w io.Writer) error { return WriteDecisions(w, decisions) })
}

// LoadDecisions reads every decision file in the directory. A non-empty tickers list filters
// case-insensitively. Files with unparseable names are skipped.
func (d *DecisionDir) LoadDecisions(ctx context.Context, tickers []string) ([]types.Decision, error) {
	log := logger.FromContext(ctx)

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", d.dir, ErrNoDecisions)
		}
		return nil, fmt.Errorf("read decision dir: %w", err)
	}
	wanted := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		wanted[strings.ToUpper(t)] = true
	}

	var (
		out   []types.Decision
		files int
	)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		ticker, strategy, ok := ParseDecisionFileName(entry.Name())
		if !ok {
			log.Warnw("skipping decision file with unexpected name", "file", entry.Name())
			continue
		}
		if len(wanted) > 0 && !wanted[strings.ToUpper(ticker)] {
			continue
		}
		if d.strategies != nil && !d.strategies[strategy] {
			continue
		}

		decisions, err := d.readFile(ctx, ticker, strategy)
		if err != nil {
			return nil, err
		}
		files++
		out = append(out, decisions...)
	}
	if files == 0 {
		return nil, fmt.Errorf("%s: %w", d.dir, ErrNoDecisions)
	}
	return out, nil
}

func (d *DecisionDir) readFile(ctx context.Context, ticker, strategy string) ([]types.Decision, error) {
	f, err := os.Open(d.Path(ticker, strategy))
	if err != nil {
		return nil, fmt.Errorf("open decisions: %w", err)
	}
	defer f.Close()

	decisions, err := ReadDecisions(ctx, f, ticker, strategy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DecisionFileName(ticker, strategy), err)
	}
	return decisions, nil
}

// ReadDecisions parses date,action rows. Rows with an unknown action are skipped with a warning.
func ReadDecisions(ctx context.Context, r io.Reader, ticker, strategy string) ([]types.Decision, error) {
	var rows []*decisionRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("read decisions: %w", err)
	}
	out := make([]types.Decision, 0, len(rows))
	for _, row := range rows {
		action, err := types.ParseAction(row.Action)
		if err != nil {
			logger.FromContext(ctx).Warnw("skipping decision row",
				"ticker", ticker, "strategy", strategy, "date", time.Time(row.Date).Format(time.DateOnly), "error", err)
			continue
		}
		out = append(out, types.NewDecision(ticker, strategy, time.Time(row.Date), action))
	}
	return out, nil
}

// WriteDecisions writes date,action rows sorted by date with upper-case actions.
func WriteDecisions(w io.Writer, decisions []types.Decision) error {
	sorted := make([]types.Decision, len(decisions))
	copy(sorted, decisions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	rows := make([]*decisionRow, 0, len(sorted))
	for _, d := range sorted {
		rows = append(rows, &decisionRow{Date: csvDate(d.Date), Action: strings.ToUpper(string(d.Action))})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write decisions: %w", err)
	}
	return nil
}
