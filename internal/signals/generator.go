package signals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"signalfolio/internal/logger"
	"signalfolio/types"

	"github.com/schollz/progressbar/v3"
)

const DefaultBatchSize = 10

type decisionStore interface {
	Exists(ticker, strategy string) bool
	Save(ticker, strategy string, decisions []types.Decision) error
}

type Result struct {
	Generated     int      `json:"generated"`
	Skipped       int      `json:"skipped"`
	Failed        int      `json:"failed"`
	FailedTickers []string `json:"failed_tickers"`
}

// Generator writes one decision stream per (ticker, strategy), a batch of tickers at a time.
type Generator struct {
	BatchSize    int
	strategies   []Strategy
	store        decisionStore
	showProgress bool
}

func NewGenerator(store decisionStore, batchSize int, strategies ...Strategy) *Generator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if len(strategies) == 0 {
		strategies = Defaults()
	}
	return &Generator{
		BatchSize:  batchSize,
		strategies: strategies,
		store:      store,
	}
}

func (g *Generator) WithProgress(show bool) *Generator {
	g.showProgress = show
	return g
}

type tickerOutcome struct {
	generated int
	skipped   int
	err       error
}

// Run processes tickers in ascending order. Streams that already exist are left alone. A failing
// ticker is recorded and does not stop the others; a cancelled ctx stops before the next batch.
func (g *Generator) Run(ctx context.Context, bars map[string][]types.PriceBar) (Result, error) {
	log := logger.FromContext(ctx)

	tickers := make([]string, 0, len(bars))
	for t := range bars {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	bar := newProgressBar(len(tickers), g.showProgress)
	defer bar.Finish()

	var result Result
	for start := 0; start < len(tickers); start += g.BatchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		end := min(start+g.BatchSize, len(tickers))
		batch := tickers[start:end]
		log.Debugw("generating batch", "from", batch[0], "to", batch[len(batch)-1], "remaining", len(tickers)-start)

		outcomes := make([]tickerOutcome, len(batch))
		var wg sync.WaitGroup
		for i, ticker := range batch {
			i, ticker := i, ticker
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcomes[i] = g.generate(ctx, ticker, bars[ticker])
			}()
		}
		wg.Wait()

		for i, o := range outcomes {
			result.Generated += o.generated
			result.Skipped += o.skipped
			if o.err != nil {
				log.Warnw("signal generation failed", "ticker", batch[i], "error", o.err)
				result.Failed++
				result.FailedTickers = append(result.FailedTickers, batch[i])
			}
			_ = bar.Add(1)
		}
	}

	log.Infow("signal generation finished",
		"generated", result.Generated, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}

func (g *Generator) generate(ctx context.Context, ticker string, bars []types.PriceBar) tickerOutcome {
	var out tickerOutcome
	for _, s := range g.strategies {
		if g.store.Exists(ticker, s.Name()) {
			out.skipped++
			continue
		}

		decisions, err := s.Decide(withTicker(bars, ticker))
		if errors.Is(err, ErrNotEnoughBars) {
			logger.FromContext(ctx).Debugw("short history", "ticker", ticker, "strategy", s.Name(), "error", err)
			out.skipped++
			continue
		}
		if err != nil {
			out.err = fmt.Errorf("%s: %w", s.Name(), err)
			return out
		}
		if err := g.store.Save(ticker, s.Name(), decisions); err != nil {
			out.err = fmt.Errorf("save %s: %w", s.Name(), err)
			return out
		}
		out.generated++
	}
	return out
}

// withTicker stamps the series key onto bars that arrived without one.
func withTicker(bars []types.PriceBar, ticker string) []types.PriceBar {
	for _, b := range bars {
		if b.Ticker != ticker {
			out := make([]types.PriceBar, len(bars))
			for i, b := range bars {
				b.Ticker = ticker
				out[i] = b
			}
			return out
		}
	}
	return bars
}

func newProgressBar(maxTicks int, visible bool) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetDescription("Generating signals..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
	}
	if !visible {
		opts = append(opts, progressbar.OptionSetWriter(io.Discard))
	}
	return progressbar.NewOptions(maxTicks, opts...)
}
