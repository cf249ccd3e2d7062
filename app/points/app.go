// Package points wires the batch computation together: external state is
// loaded through the adapters, fed into the engine, and the results are
// optionally published and minted.
package points

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/libertai/ltai-points/pkg/aleph"
	"github.com/libertai/ltai-points/pkg/config"
	"github.com/libertai/ltai-points/pkg/engine"
	"github.com/libertai/ltai-points/pkg/ethereum"
	"github.com/libertai/ltai-points/pkg/logging"
	"github.com/libertai/ltai-points/pkg/store"
	"github.com/libertai/ltai-points/pkg/vesting"
)

// Options are the CLI-level switches of a run.
type Options struct {
	Verbosity int
	Publish   bool
	Mint      bool
	Schedule  string
}

// App owns the process-wide collaborators.
type App struct {
	Logger   *zap.Logger
	Settings *config.Settings
	Opts     Options

	store *store.Snapshots
	aleph *aleph.Client
	eth   *ethereum.Client
	cron  *cron.Cron
}

// Initialize loads settings and opens the external connections.
func Initialize(ctx context.Context, opts Options) *App {
	logger, err := logging.NewWithVerbosity(opts.Verbosity)
	if err != nil {
		// nothing else to do here, stderr is all we have
		panic(err)
	}

	settings, err := config.Load()
	if err != nil {
		logger.Fatal("invalid settings", zap.Error(err))
	}

	snapshots, err := store.Open(settings.DBPath)
	if err != nil {
		logger.Fatal("unable to open snapshot store", zap.Error(err))
	}

	eth, err := ethereum.Dial(ctx, settings, logger)
	if err != nil {
		logger.Fatal("unable to reach ethereum rpc", zap.Error(err))
	}

	return &App{
		Logger:   logger,
		Settings: settings,
		Opts:     opts,
		store:    snapshots,
		aleph:    aleph.NewClient(settings.APIEndpoint, logger),
		eth:      eth,
	}
}

// Start executes one run, or keeps re-running on the cron schedule until
// the context is canceled.
func (a *App) Start(ctx context.Context) {
	if a.Opts.Schedule == "" {
		if err := a.Run(ctx); err != nil {
			a.Logger.Fatal("run failed", zap.Error(err))
		}
		return
	}

	a.cron = cron.New()
	_, err := a.cron.AddFunc(a.Opts.Schedule, func() {
		if err := a.Run(ctx); err != nil {
			a.Logger.Error("scheduled run failed", zap.Error(err))
		}
	})
	if err != nil {
		a.Logger.Fatal("invalid schedule expression", zap.Error(err))
	}
	a.Logger.Info("running on schedule", zap.String("schedule", a.Opts.Schedule))
	a.cron.Start()
	<-ctx.Done()
}

// Stop releases external connections.
func (a *App) Stop() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	a.eth.Close()
	if err := a.store.Close(); err != nil {
		a.Logger.Warn("closing snapshot store", zap.Error(err))
	}
	_ = a.Logger.Sync()
}

// Run performs one full batch computation, publishing and minting when the
// corresponding flags are set.
func (a *App) Run(ctx context.Context) error {
	tokenState, err := a.eth.TokenState(ctx)
	if err != nil {
		return err
	}

	registrations, err := aleph.Registrations(ctx, a.aleph, a.Settings)
	if err != nil {
		return err
	}

	schedule, err := vesting.Load(a.Settings.SupplyFilename, a.Settings.TGE, a.Logger)
	if err != nil {
		return err
	}

	source := aleph.NewSnapshotSource(a.aleph, a.Settings, a.store, a.Logger)
	eng := engine.New(a.Settings, a.Logger, source, registrations, tokenState, schedule)

	result, err := eng.Compute(ctx)
	if err != nil {
		return err
	}

	if a.Opts.Publish {
		publisher := aleph.NewPublisher(a.aleph, a.Settings, a.Logger)
		if err := publisher.Publish(ctx, result.Settled, result.Pending, result.Estimated, result.Info); err != nil {
			return err
		}
	}

	if a.Opts.Mint {
		if err := a.mint(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// mint partitions the pending ledger into batches above the threshold and
// broadcasts them with sequenced nonces, pausing between transactions.
func (a *App) mint(ctx context.Context, result *engine.Result) error {
	batches := ethereum.Batches(result.Pending, a.Settings.MintThreshold, a.Settings.BatchSize)
	if len(batches) == 0 {
		a.Logger.Info("nothing above mint threshold")
		return nil
	}

	var nonce *uint64
	for i, batch := range batches {
		a.Logger.Info("minting batch",
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("items", len(batch)))
		hash, used, err := a.eth.MintBatch(ctx, batch, nonce)
		if err != nil {
			return err
		}
		a.Logger.Info("batch broadcast", zap.String("tx", hash))
		next := used + 1
		nonce = &next

		if i < len(batches)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.Settings.PauseTime):
			}
		}
	}
	return nil
}
