package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
	"github.com/hedgeworks/crossarb/internal/ledger"
)

const defaultSweepInterval = 30 * time.Second

// Engine consumes validated outcome pairs from the feed and runs each through
// the full pipeline: cooldown, detection, risk sizing, execution. Processing
// is strictly sequential; one pair is fully handled before the next is read.
type Engine struct {
	pairs    <-chan domain.OutcomePair
	detector *Detector
	sizer    *Sizer
	coord    *Coordinator
	ledger   *ledger.Manager
	cooldown *Cooldown
	logger   *slog.Logger

	sweepInterval time.Duration
}

// NewEngine wires the pipeline stages together. cooldownTTL is how long an
// executed pair stays ineligible for re-evaluation.
func NewEngine(
	pairs <-chan domain.OutcomePair,
	detector *Detector,
	sizer *Sizer,
	coord *Coordinator,
	lm *ledger.Manager,
	cooldownTTL time.Duration,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		pairs:         pairs,
		detector:      detector,
		sizer:         sizer,
		coord:         coord,
		ledger:        lm,
		cooldown:      NewCooldown(cooldownTTL),
		logger:        logger.With(slog.String("component", "engine")),
		sweepInterval: defaultSweepInterval,
	}
}

// SetSweepInterval changes how often expired cooldown entries are collected.
// Must be called before Run.
func (e *Engine) SetSweepInterval(d time.Duration) {
	e.sweepInterval = d
}

// Run processes pairs until the context is cancelled or the feed channel
// closes. Quotes buffered at shutdown are dropped: they are stale by
// definition and placing against them would be worse than skipping them.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started")
	defer e.logger.Info("engine stopped")

	sweepTicker := time.NewTicker(e.sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case pair, ok := <-e.pairs:
			if !ok {
				return nil
			}
			e.process(ctx, pair)

		case <-sweepTicker.C:
			e.cooldown.Sweep()
		}
	}
}

// process runs one pair through the pipeline.
func (e *Engine) process(ctx context.Context, pair domain.OutcomePair) {
	pairID := pair.ID()
	log := e.logger.With(slog.String("pair", pairID))

	// 1. Cooldown. A pair that just attempted execution sits out the window.
	if e.cooldown.Active(pairID) {
		log.DebugContext(ctx, "pair in cooldown, skipping")
		return
	}

	// 2. Detection.
	opp, err := e.detector.Detect(pair)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSameVenue), errors.Is(err, domain.ErrNoEdge):
			log.DebugContext(ctx, "no opportunity", slog.String("reason", err.Error()))
		case errors.Is(err, domain.ErrZeroPrice):
			log.WarnContext(ctx, "broken quote, skipping pair", slog.String("reason", err.Error()))
		default:
			log.ErrorContext(ctx, "detection failed", slog.String("error", err.Error()))
		}
		return
	}

	// 3. Risk sizing against the live ledger.
	now := time.Now().UTC()
	var sz Sizing
	var sizeErr error
	e.ledger.View(func(led *domain.Ledger) {
		sz, sizeErr = e.sizer.Size(opp, led, now)
	})
	if sizeErr != nil {
		log.WarnContext(ctx, "risk check rejected opportunity",
			slog.String("quality", string(opp.Quality)),
			slog.Float64("edge", opp.Edge),
			slog.String("reason", sizeErr.Error()),
		)
		return
	}

	// 4. Execution. The pair cools down win or lose: these quotes had their
	// chance, and immediate retries would re-place against the same book.
	e.cooldown.Touch(pairID)
	trade, err := e.coord.Execute(ctx, opp, sz)
	if err != nil {
		if trade != nil {
			log.ErrorContext(ctx, "trade committed with degraded persistence",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		log.ErrorContext(ctx, "execution failed", slog.String("error", err.Error()))
		return
	}

	log.InfoContext(ctx, "opportunity executed",
		slog.String("trade_id", trade.ID),
		slog.String("quality", string(opp.Quality)),
		slog.Float64("cost_usd", sz.CostUSD),
		slog.Float64("expected_profit_usd", sz.ProfitUSD),
		slog.Float64("roi_pct", sz.ROIPct),
	)
}
