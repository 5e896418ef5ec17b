// Package daemon wires the engine bridge, the event pipeline and the control
// socket into one fx application.
package daemon

import (
	"context"
	"errors"

	"github.com/ry-diffusion/Tina/internal/api"
	"github.com/ry-diffusion/Tina/internal/bus"
	"github.com/ry-diffusion/Tina/internal/config"
	"github.com/ry-diffusion/Tina/internal/ipc"
	"github.com/ry-diffusion/Tina/internal/lock"
	"github.com/ry-diffusion/Tina/internal/logging"
	"github.com/ry-diffusion/Tina/internal/paths"
	"github.com/ry-diffusion/Tina/internal/status"
	"github.com/ry-diffusion/Tina/internal/store"
	"github.com/ry-diffusion/Tina/internal/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
	Logger *zap.Logger // optional override for testing; nil = log to the data dir
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLayout,
			provideLogger,
			provideLock,
			provideStore,
			provideBus,
			provideRegistry,
			provideBridge,
			provideWorker,
			provideControl,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLayout(p Params) (paths.Layout, error) {
	if p.Config == nil {
		return paths.Layout{}, errors.New("daemon: no config")
	}
	layout := p.Config.Layout()
	if err := layout.EnsureDirs(); err != nil {
		return paths.Layout{}, err
	}
	return layout, nil
}

func provideLogger(p Params, layout paths.Layout) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(layout.LogPath(), p.Config.LogLevel, "wppd")
}

func provideLock(layout paths.Layout, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring daemon lock", zap.String("dir", layout.Root))
	l, err := lock.Acquire(layout.Root)
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired")
	return l, nil
}

// provideStore depends on the lock so a second daemon never migrates a
// database that is in use.
func provideStore(layout paths.Layout, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := layout.DBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideRegistry(b *bus.Bus) *status.Registry {
	return status.NewRegistry(b)
}

func provideBridge(p Params, logger *zap.Logger) *ipc.Bridge {
	return ipc.NewBridge(p.Config.BridgeOptions(), logger)
}

func provideWorker(db *store.DB, bridge *ipc.Bridge, logger *zap.Logger) *worker.Worker {
	return worker.New(db, bridge, logger)
}

func provideControl(w *worker.Worker, r *status.Registry, b *bus.Bus, logger *zap.Logger) *api.Control {
	return api.NewControl(w, r, b, logger)
}

type lifecycleDeps struct {
	fx.In

	Params   Params
	Server   *Server
	Lock     *lock.Lock
	DB       *store.DB
	Bridge   *ipc.Bridge
	Worker   *worker.Worker
	Registry *status.Registry
	Bus      *bus.Bus
	Logger   *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	runCtx, cancel := context.WithCancel(context.Background())
	relayDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := d.Bridge.Start(ctx); err != nil {
				d.Logger.Error("engine failed to start", zap.Error(err))
				cancel()
				close(relayDone)
				d.Server.Stop(ctx)
				_ = d.DB.Close()
				_ = d.Lock.Release()
				return err
			}

			d.Worker.Start(runCtx)
			go func() {
				defer close(relayDone)
				relay(runCtx, d.Worker.Events(), d.Registry, d.Bus, d.Logger)
			}()

			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("control server error", zap.Error(err))
				}
			}()

			if d.Params.Config.AutostartAccounts {
				autostart(d.Worker, d.Logger)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Server.Stop(ctx)
			if err := d.Worker.Stop(); err != nil {
				d.Logger.Warn("error stopping engine", zap.Error(err))
			}
			cancel()
			<-relayDone
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}

// autostart resumes every account that has completed pairing before.
func autostart(w *worker.Worker, logger *zap.Logger) {
	accounts, err := w.ListAccounts()
	if err != nil {
		logger.Error("autostart: list accounts", zap.Error(err))
		return
	}
	for _, a := range accounts {
		if a.AuthState == nil {
			continue
		}
		if err := w.StartAccount(a.ID); err != nil {
			logger.Warn("autostart failed", zap.String("account_id", a.ID), zap.Error(err))
			continue
		}
		logger.Info("account autostarted", zap.String("account_id", a.ID))
	}
}
