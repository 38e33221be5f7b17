package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"shares-gate/internal/chain"
	"shares-gate/internal/gate"
	"shares-gate/internal/metrics"
	"shares-gate/internal/storage"
)

// Store is the slice of persistence the ledger service needs.
type Store interface {
	ApplyTrade(ctx context.Context, mut storage.TradeMutation) (storage.TradeResult, error)
	GetMapping(ctx context.Context, address, chainType string) (storage.Mapping, bool, error)
	MarkBanned(ctx context.Context, address, chainType string) error
}

// Service folds decoded trade events into the share ledger and detects the
// balance transitions that drive gate decisions.
type Service struct {
	store  Store
	logger zerolog.Logger
}

// New constructs the ledger service.
func New(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger.With().Str("component", "ledger").Logger()}
}

// Apply mutates the ledger for one event and returns the gate decision the
// transition produced, if any. Events already recorded under their
// (chain, tx, log index) key are no-ops, so re-applying a batch after a
// crash leaves the ledger unchanged.
func (s *Service) Apply(ctx context.Context, ev chain.TradeEvent) (*gate.Decision, error) {
	if ev.Amount.IsNegative() {
		return nil, fmt.Errorf("negative trade amount %s for tx %s", ev.Amount, ev.TxID)
	}

	result, err := s.store.ApplyTrade(ctx, storage.TradeMutation{
		Trader:    ev.Trader,
		Subject:   ev.Subject,
		ChainType: ev.ChainType,
		Amount:    ev.Amount,
		IsBuy:     ev.IsBuy,
		TxID:      ev.TxID,
		LogIndex:  ev.LogIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("apply trade: %w", err)
	}

	if !result.Applied {
		metrics.EventsReplayed.WithLabelValues(ev.ChainType).Inc()
		s.logger.Debug().
			Str("tx_id", ev.TxID).
			Uint64("log_index", ev.LogIndex).
			Msg("event already applied, skipping replay")
		return nil, nil
	}

	metrics.EventsProcessed.WithLabelValues(ev.ChainType).Inc()

	if ev.IsBuy {
		return s.afterBuy(ctx, ev, result)
	}
	return s.afterSell(ctx, ev, result)
}

// afterBuy re-evaluates access for gated holders. Every buy that leaves a
// gated trader with a positive balance emits an ungate decision; the gated
// flag itself stays set.
func (s *Service) afterBuy(ctx context.Context, ev chain.TradeEvent, result storage.TradeResult) (*gate.Decision, error) {
	mapping, ok, err := s.store.GetMapping(ctx, ev.Trader, ev.ChainType)
	if err != nil {
		return nil, fmt.Errorf("lookup mapping: %w", err)
	}
	if !ok || !mapping.Banned {
		return nil, nil
	}
	if !result.Balance.IsPositive() {
		return nil, nil
	}

	return &gate.Decision{
		ChainType:  ev.ChainType,
		Trader:     ev.Trader,
		Subject:    ev.Subject,
		TelegramID: mapping.TelegramID,
		Allow:      true,
	}, nil
}

// afterSell revokes access when the balance lands on exactly zero and the
// trader has a known chat identity.
func (s *Service) afterSell(ctx context.Context, ev chain.TradeEvent, result storage.TradeResult) (*gate.Decision, error) {
	if !result.Found {
		s.logger.Warn().
			Str("trader", ev.Trader).
			Str("subject", ev.Subject).
			Str("chain", ev.ChainType).
			Msg("sell against unknown ledger key, ignored")
		return nil, nil
	}

	if !result.Balance.IsZero() {
		return nil, nil
	}

	mapping, ok, err := s.store.GetMapping(ctx, ev.Trader, ev.ChainType)
	if err != nil {
		return nil, fmt.Errorf("lookup mapping: %w", err)
	}
	if !ok {
		return nil, nil
	}

	if err := s.store.MarkBanned(ctx, ev.Trader, ev.ChainType); err != nil {
		return nil, fmt.Errorf("mark gated: %w", err)
	}

	s.logger.Info().
		Str("trader", ev.Trader).
		Str("subject", ev.Subject).
		Str("chain", ev.ChainType).
		Msg("balance reached zero, revoking access")

	return &gate.Decision{
		ChainType:  ev.ChainType,
		Trader:     ev.Trader,
		Subject:    ev.Subject,
		TelegramID: mapping.TelegramID,
		Allow:      false,
	}, nil
}
