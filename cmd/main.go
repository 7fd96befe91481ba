// jobmate-posting-service
//
// Backend-for-frontend for the job-posting flow. Exposes a REST API used by
// the Gateway to implement:
//   - screening question authoring (catalog, add/edit/remove, must-have)
//   - settings assembly (auto-reject message, applicant notifications)
//   - review and single-fire submit to the job backend (create or update)
//
// Drafts live in Redis (in memory when REDIS_URL is unset). Submit attempts
// are recorded in PostgreSQL when DATABASE_URL is set. On success publishes
// EVENT_JOB_POSTED / EVENT_JOB_UPDATED on the configured event bus.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"jobmate/posting-service/internal/backend"
	"jobmate/posting-service/internal/cache"
	"jobmate/posting-service/internal/config"
	"jobmate/posting-service/internal/db"
	"jobmate/posting-service/internal/events"
	"jobmate/posting-service/internal/grpcserver"
	"jobmate/posting-service/internal/ledger"
	"jobmate/posting-service/internal/scheduler"
	"jobmate/posting-service/internal/store"
	"jobmate/posting-service/internal/telemetry"
	"jobmate/posting-service/internal/workflow"
)

const serviceName = "posting-service"

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if level.Level() == zap.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build(zap.Fields(zap.String("service", serviceName)))
}

// ── Backing services (all optional) ─────────────────────────────────────────

func newRedis(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, drafts are kept in memory")
		return nil, nil
	}
	rdb, err := db.NewRedisClient(context.Background(), cfg.RedisURL, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(rdb.Close))
	return rdb, nil
}

func newPostgres(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, submission ledger disabled")
		return nil, nil
	}
	pool, err := db.NewPostgresPool(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(pool.Close))
	return pool, nil
}

func newStore(cfg *config.Config, rdb *redis.Client) store.Store {
	if rdb == nil {
		return store.NewMemory(cfg.DraftTTL)
	}
	return store.NewRedis(rdb, cfg.DraftTTL)
}

func newCache(rdb *redis.Client) cache.Cache {
	if rdb == nil {
		return cache.NewMemory()
	}
	return cache.NewRedis(rdb, "posting:cache:")
}

func newLedger(lc fx.Lifecycle, pool *pgxpool.Pool) (ledger.Recorder, *ledger.Store) {
	if pool == nil {
		return ledger.Nop{}, nil
	}
	st := ledger.NewStore(pool)
	lc.Append(fx.StartHook(st.Migrate))
	return st, st
}

func newPublisher(lc fx.Lifecycle, cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (events.Publisher, error) {
	var pub events.Publisher
	switch cfg.EventBus {
	case config.BusNATS:
		np, err := events.NewNATSPublisher(cfg.NATSURL, 5*time.Second, logger)
		if err != nil {
			return nil, err
		}
		pub = np
	case config.BusRedis:
		pub = events.NewRedisPublisher(rdb, logger)
	default:
		pub = events.Nop{}
	}
	lc.Append(fx.StopHook(pub.Close))
	return pub, nil
}

// ── Domain ──────────────────────────────────────────────────────────────────

func newBackendClient(cfg *config.Config, logger *zap.Logger) *backend.Client {
	return backend.NewClient(cfg.BackendURL, cfg.BackendToken, cfg.BackendTimeout, logger)
}

func newCompanies(cfg *config.Config, client *backend.Client, c cache.Cache, logger *zap.Logger) *backend.Companies {
	return backend.NewCompanies(client, c, cfg.CompaniesCacheTTL, logger)
}

func newService(cfg *config.Config, st store.Store, client *backend.Client, rec ledger.Recorder, pub events.Publisher, logger *zap.Logger) *workflow.Service {
	return workflow.NewService(st, client, rec, pub, logger, workflow.Options{
		Defaults:      cfg.Defaults,
		SubmitLockTTL: cfg.SubmitLockTTL,
	})
}

func newHandler(svc *workflow.Service, companies *backend.Companies, logger *zap.Logger) *workflow.Handler {
	return workflow.NewHandler(svc, companies, logger)
}

// ── Servers and background jobs ─────────────────────────────────────────────

func runTracer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) {
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = telemetry.InitTracer(ctx, serviceName, cfg.OTELCollectorURL)
			if err != nil {
				return err
			}
			if cfg.OTELCollectorURL != "" {
				logger.Info("tracing enabled", zap.String("collector", cfg.OTELCollectorURL))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}

func runHTTP(lc fx.Lifecycle, cfg *config.Config, h *workflow.Handler, logger *zap.Logger) {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.BackendTimeout + 10*time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			go func() {
				logger.Info("http listening", zap.String("addr", srv.Addr))
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}

func runGRPC(lc fx.Lifecycle, cfg *config.Config, svc *workflow.Service, logger *zap.Logger) {
	gs := grpc.NewServer()
	hs := grpcserver.Register(gs, grpcserver.NewServer(svc))
	addr := fmt.Sprintf(":%s", cfg.GRPCPort)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			go func() {
				logger.Info("grpc listening", zap.String("addr", addr))
				if err := gs.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					logger.Error("grpc server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			hs.Shutdown()
			gs.GracefulStop()
			return nil
		},
	})
}

func runReaper(lc fx.Lifecycle, cfg *config.Config, st *ledger.Store, logger *zap.Logger) {
	if st == nil {
		return
	}
	sched := scheduler.New(st, cfg.ReaperSchedule, cfg.ReaperStaleAfter, logger)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return sched.Start(ctx) },
		OnStop: func(context.Context) error {
			cancel()
			sched.Stop()
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Provide(
			config.Load,
			newLogger,
			newRedis,
			newPostgres,
			newStore,
			newCache,
			newLedger,
			newPublisher,
			newBackendClient,
			newCompanies,
			newService,
			newHandler,
		),
		fx.Invoke(
			runTracer,
			runHTTP,
			runGRPC,
			runReaper,
		),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		log.Fatalf("[posting-service] start: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Printf("[posting-service] shutdown: %v", err)
	}
}
