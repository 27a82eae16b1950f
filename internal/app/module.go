package app

import (
	"context"
	"fmt"

	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/classify"
	"github.com/matheus3301/inbox/internal/config"
	"github.com/matheus3301/inbox/internal/localdb"
	"github.com/matheus3301/inbox/internal/lock"
	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/metrics"
	"github.com/matheus3301/inbox/internal/model"
	"github.com/matheus3301/inbox/internal/profile"
	"github.com/matheus3301/inbox/internal/rest"
	"github.com/matheus3301/inbox/internal/server"
	"github.com/matheus3301/inbox/internal/status"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/matheus3301/inbox/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	Binary     string // log file name under the profile log dir
	ConfigPath string // optional override; empty = use default

	// WithTransport connects the live websocket when a socket URL is configured.
	WithTransport bool
	// WithDebugServer serves /healthz, /state and /metrics on debug.addr.
	WithDebugServer bool
	// LogToFileOnly keeps stderr clean for full-screen terminal UIs.
	LogToFileOnly bool
}

// Module returns the fx module composing the engine: config, logging, local
// persistence, REST client, transport and store.
func Module(p Params) fx.Option {
	return fx.Module("inbox",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLink,
			provideLock,
			provideLocalDB,
			provideMetrics,
			provideREST,
			provideTransport,
			provideStore,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

// EventLogger routes fx lifecycle events into the engine log. Pass it to
// fx.WithLogger in binaries; stderr belongs to the terminal UI.
func EventLogger(logger *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = profile.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	level, err := logging.ParseLevel(cfg.Debug.LogLevel)
	if err != nil {
		return nil, err
	}
	binary := p.Binary
	if binary == "" {
		binary = "inbox"
	}
	path := profile.LogPath(p.Profile, binary)
	if p.LogToFileOnly {
		return logging.NewFileOnly(path, p.Profile, level)
	}
	return logging.New(path, p.Profile, level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLink(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideLocalDB depends on the lock so only one process migrates the database.
func provideLocalDB(p Params, _ *lock.Lock, logger *zap.Logger) (*localdb.DB, error) {
	path := profile.DBPath(p.Profile)
	db, result, err := localdb.OpenMigrated(path)
	if err != nil {
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("local store initialized", zap.String("path", path))
	return db, nil
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideREST(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*rest.Client, error) {
	return rest.New(rest.Options{
		BaseURL: cfg.Server.BaseURL,
		Token:   cfg.Server.Token,
		Timeout: cfg.Server.Timeout.Duration,
		Metrics: m,
		Logger:  logger.Named("rest"),
	})
}

// provideTransport returns the websocket transport, or an in-process one
// that never delivers events when live updates are disabled.
func provideTransport(p Params, cfg *config.Config, b *bus.Bus, link *status.Machine, logger *zap.Logger) (transport.Transport, error) {
	if !p.WithTransport || cfg.Server.SocketURL == "" {
		logger.Info("live transport disabled")
		return transport.NewMemory(logger.Named("transport")), nil
	}
	return transport.NewWebSocket(transport.WebSocketOptions{
		URL:    cfg.Server.SocketURL,
		Token:  cfg.Server.Token,
		Bus:    b,
		Status: link,
		Logger: logger.Named("transport"),
	})
}

func provideStore(cfg *config.Config, api *rest.Client, tr transport.Transport, b *bus.Bus, db *localdb.DB, m *metrics.Metrics, logger *zap.Logger) *store.Store {
	mode := model.KindContact
	if cfg.Inbox.ViewMode == config.ViewTicket {
		mode = model.KindTicket
	}
	return store.New(store.Options{
		API:              api,
		Transport:        tr,
		Bus:              b,
		Local:            db,
		Logger:           logger.Named("store"),
		Metrics:          m,
		PageSize:         cfg.Inbox.PageSize,
		Mode:             mode,
		AutoCreateTicket: cfg.Inbox.AutoCreateTicket,
		Thresholds: classify.Thresholds{
			UrgentAfter:  cfg.Inbox.UrgentAfter.Duration,
			OverdueAfter: cfg.Inbox.OverdueAfter.Duration,
		},
	})
}

// provideServer returns nil when the debug server is disabled.
func provideServer(p Params, cfg *config.Config, st *store.Store, link *status.Machine, m *metrics.Metrics, logger *zap.Logger) *server.Server {
	if !p.WithDebugServer || cfg.Debug.Addr == "" {
		return nil
	}
	return server.New(cfg.Debug.Addr, st, link, m.Registry, logger.Named("server"))
}

func registerLifecycle(lc fx.Lifecycle, st *store.Store, tr transport.Transport, srv *server.Server, db *localdb.DB, lk *lock.Lock, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Handlers must be registered before the first frame arrives.
			if err := st.Start(); err != nil {
				logger.Warn("joining global room failed", zap.Error(err))
			}

			if ws, ok := tr.(*transport.WebSocket); ok {
				go func() {
					if err := ws.Run(runCtx); err != nil && runCtx.Err() == nil {
						logger.Error("transport stopped", zap.Error(err))
					}
				}()
			}

			if srv != nil {
				go func() {
					if err := srv.Start(); err != nil {
						logger.Error("debug server error", zap.Error(err))
					}
				}()
			}

			go func() {
				defer close(done)
				if err := st.LoadConversations(runCtx); err != nil {
					logger.Warn("initial conversation load failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			<-done
			st.Close()
			if srv != nil {
				if err := srv.Stop(ctx); err != nil {
					logger.Warn("error stopping debug server", zap.Error(err))
				}
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing local store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
