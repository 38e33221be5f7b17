package sync

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"shares-gate/internal/chain"
	"shares-gate/internal/gate"
	"shares-gate/internal/metrics"
	"shares-gate/internal/storage"
)

// Applier folds one event into the ledger.
type Applier interface {
	Apply(ctx context.Context, ev chain.TradeEvent) (*gate.Decision, error)
}

// DecisionApplier executes a gate decision against the external system.
type DecisionApplier interface {
	ApplyDecision(ctx context.Context, d gate.Decision) error
}

// Options tune loop pacing. Zero values fall back to the defaults used in
// production: 10s fetch retry, 60s idle when caught up, 1s between batches.
type Options struct {
	RetryInterval time.Duration
	IdleInterval  time.Duration
	PaceInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.RetryInterval <= 0 {
		o.RetryInterval = 10 * time.Second
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = 60 * time.Second
	}
	if o.PaceInterval <= 0 {
		o.PaceInterval = time.Second
	}
	return o
}

// Engine drives one chain source in an unending fetch, apply, checkpoint
// loop. All chain-shape specifics live behind chain.Source; the engine only
// sees opaque checkpoints and ordered batches.
type Engine struct {
	source      chain.Source
	checkpoints storage.CheckpointStore
	ledger      Applier
	policy      DecisionApplier
	opts        Options
	logger      zerolog.Logger
}

// New constructs a sync engine for one chain.
func New(source chain.Source, checkpoints storage.CheckpointStore, ledger Applier, policy DecisionApplier, opts Options, logger zerolog.Logger) *Engine {
	return &Engine{
		source:      source,
		checkpoints: checkpoints,
		ledger:      ledger,
		policy:      policy,
		opts:        opts.withDefaults(),
		logger:      logger.With().Str("component", "sync").Str("chain", source.Name()).Logger(),
	}
}

// Run loops until ctx is cancelled. The checkpoint only advances after a
// whole batch has been applied, so a crash mid-batch re-fetches the same
// window; per-event replay protection in the ledger makes that safe.
func (e *Engine) Run(ctx context.Context) error {
	cp, ok, err := e.checkpoints.LoadCheckpoint(ctx, e.source.Name())
	if err != nil {
		return err
	}
	if !ok {
		cp = e.source.Bootstrap()
		if err := e.checkpoints.InitCheckpoint(ctx, cp); err != nil {
			return err
		}
		e.logger.Info().Uint64("position", cp.Position).Msg("initialised checkpoint")
	}
	metrics.CheckpointPosition.WithLabelValues(e.source.Name()).Set(float64(cp.Position))

	e.logger.Info().
		Uint64("position", cp.Position).
		Str("cursor", cp.CursorToken).
		Msg("starting sync")

	for {
		batch, err := e.fetch(ctx, cp)
		if err != nil {
			// Only context cancellation escapes the retry loop.
			return err
		}

		if batch == nil {
			e.logger.Debug().Msg("caught up, idling")
			if err := sleepCtx(ctx, e.opts.IdleInterval); err != nil {
				return err
			}
			continue
		}

		e.applyBatch(ctx, batch)

		if err := e.checkpoints.SaveCheckpoint(ctx, batch.Next); err != nil {
			// The window is re-fetched next iteration; replay protection
			// keeps the re-application harmless.
			e.logger.Error().Err(err).Msg("failed to persist checkpoint")
		} else {
			cp = batch.Next
			metrics.CheckpointPosition.WithLabelValues(e.source.Name()).Set(float64(cp.Position))
		}

		if err := sleepCtx(ctx, e.opts.PaceInterval); err != nil {
			return err
		}
	}
}

func (e *Engine) fetch(ctx context.Context, cp storage.Checkpoint) (*chain.Batch, error) {
	policy := backoff.WithContext(backoff.NewConstantBackOff(e.opts.RetryInterval), ctx)
	return backoff.RetryNotifyWithData(
		func() (*chain.Batch, error) {
			return e.source.Next(ctx, cp)
		},
		policy,
		func(err error, d time.Duration) {
			metrics.FetchFailures.WithLabelValues(e.source.Name()).Inc()
			e.logger.Warn().Err(err).Dur("retry_in", d).Msg("fetch failed, retrying")
		},
	)
}

// applyBatch applies events in chain order. A single event's failure is
// logged and skipped so one bad event never blocks global progress.
func (e *Engine) applyBatch(ctx context.Context, batch *chain.Batch) {
	if len(batch.Events) > 0 {
		e.logger.Info().
			Int("events", len(batch.Events)).
			Uint64("next_position", batch.Next.Position).
			Msg("applying batch")
	}

	for _, ev := range batch.Events {
		decision, err := e.ledger.Apply(ctx, ev)
		if err != nil {
			metrics.EventsSkipped.WithLabelValues(e.source.Name()).Inc()
			e.logger.Error().Err(err).
				Str("tx_id", ev.TxID).
				Uint64("log_index", ev.LogIndex).
				Msg("failed to apply event, skipping")
			continue
		}
		if decision == nil {
			continue
		}
		if err := e.policy.ApplyDecision(ctx, *decision); err != nil {
			// Ledger state is already committed; the decision is logged
			// and dropped on this path.
			e.logger.Error().Err(err).
				Str("trader", decision.Trader).
				Bool("allow", decision.Allow).
				Msg("failed to apply gate decision")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
