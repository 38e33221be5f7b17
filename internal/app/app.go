package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"shares-gate/internal/chain"
	"shares-gate/internal/chain/evm"
	"shares-gate/internal/chain/sui"
	"shares-gate/internal/config"
	"shares-gate/internal/gate"
	"shares-gate/internal/httpapi"
	"shares-gate/internal/ledger"
	"shares-gate/internal/storage"
	syncengine "shares-gate/internal/sync"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	store := storage.NewStore(pool)
	return store, store.Close, nil
}

// buildAdapters instantiates the enabled chain backends. Unparseable chain
// configuration aborts startup; nothing after startup may be fatal to the
// whole process from a single chain's perspective.
func (a *App) buildAdapters() (map[string]chain.Adapter, []chain.Source, error) {
	adapters := make(map[string]chain.Adapter)
	sources := make([]chain.Source, 0, 2)

	if a.Config.Chains.Monad.Enabled {
		cfg := a.Config.Chains.Monad
		adapter, err := evm.New(evm.Options{
			RPCURL:          cfg.RPCURL,
			ContractAddress: cfg.ContractAddress,
			StartBlock:      cfg.StartBlock,
			BatchBlocks:     cfg.BatchBlocks,
			Timeout:         cfg.RequestTimeout,
		}, a.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("configure monad adapter: %w", err)
		}
		adapters[adapter.Name()] = adapter
		sources = append(sources, adapter)
	}

	if a.Config.Chains.Sui.Enabled {
		cfg := a.Config.Chains.Sui
		adapter := sui.New(sui.Options{
			RPCURL:          cfg.RPCURL,
			PackageID:       cfg.PackageID,
			TradingObjectID: cfg.TradingObjectID,
			EventLimit:      cfg.EventLimit,
			Timeout:         cfg.RequestTimeout,
		}, a.Logger)
		adapters[adapter.Name()] = adapter
		sources = append(sources, adapter)
	}

	return adapters, sources, nil
}

// Run executes the long-running service: one sync worker per enabled chain
// plus the HTTP API, supervised together. A chain worker that fails
// permanently logs and exits alone; only listener failure or a shutdown
// signal ends the process.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	adapters, sources, err := a.buildAdapters()
	if err != nil {
		return err
	}

	notifier := gate.NewTelegramNotifier(a.Config.Telegram.APIBase, a.Config.Telegram.RequestTimeout, a.Logger)
	policy := gate.NewPolicy(store, store, notifier, a.Logger)
	ledgerSvc := ledger.New(store, a.Logger)

	server := httpapi.NewServer(a.Config.HTTP.ListenAddr, store, store, policy, adapters, a.Logger)

	opts := syncengine.Options{
		RetryInterval: a.Config.Sync.RetryInterval,
		IdleInterval:  a.Config.Sync.IdleInterval,
		PaceInterval:  a.Config.Sync.PaceInterval,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Run(groupCtx)
	})

	for _, source := range sources {
		engine := syncengine.New(source, store, ledgerSvc, policy, opts, a.Logger)
		name := source.Name()
		group.Go(func() error {
			return a.runWorker(groupCtx, name, engine)
		})
	}

	a.Logger.Info().Int("chains", len(sources)).Msg("service started")

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("service stopped")
	return nil
}

// runWorker isolates one chain's sync loop: panics and permanent errors are
// logged and terminate only this worker.
func (a *App) runWorker(ctx context.Context, name string, engine *syncengine.Engine) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error().Interface("panic", r).Str("chain", name).Msg("chain worker panicked")
			err = nil
		}
	}()

	if runErr := engine.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
		a.Logger.Error().Err(runErr).Str("chain", name).Msg("chain worker exited")
	}
	return nil
}

// Status prints the stored sync checkpoints for operator inspection.
func (a *App) Status(ctx context.Context, print func(format string, args ...interface{})) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	checkpoints, err := store.ListCheckpoints(ctx)
	if err != nil {
		return err
	}

	if len(checkpoints) == 0 {
		print("no sync checkpoints stored\n")
		return nil
	}
	for _, cp := range checkpoints {
		if cp.CursorToken != "" {
			print("%s\tposition=%d\tcursor=%s\n", cp.ChainType, cp.Position, cp.CursorToken)
			continue
		}
		print("%s\tposition=%d\n", cp.ChainType, cp.Position)
	}
	return nil
}
