package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/nemisolv/englearn-auth/internal/auth"
	"github.com/nemisolv/englearn-auth/internal/config"
	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/internal/event"
	handler "github.com/nemisolv/englearn-auth/internal/handler/http"
	"github.com/nemisolv/englearn-auth/internal/policy"
	"github.com/nemisolv/englearn-auth/internal/repository"
	"github.com/nemisolv/englearn-auth/internal/repository/memory"
	"github.com/nemisolv/englearn-auth/internal/repository/postgres"
	redisrepo "github.com/nemisolv/englearn-auth/internal/repository/redis"
	"github.com/nemisolv/englearn-auth/internal/service"
	"github.com/nemisolv/englearn-auth/migrations"
	"github.com/nemisolv/englearn-auth/pkg/database"
	"github.com/nemisolv/englearn-auth/pkg/health"
	pkgkafka "github.com/nemisolv/englearn-auth/pkg/kafka"
	"github.com/nemisolv/englearn-auth/pkg/middleware"
	"github.com/nemisolv/englearn-auth/pkg/tracing"
)

// stores groups the repositories selected by STORE_DRIVER.
type stores struct {
	users  repository.UserRepository
	rbac   repository.RBACRepository
	tokens repository.RefreshTokenRepository
}

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	sessions       *service.SessionService
	limiter        *handler.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	stopWorkers context.CancelFunc
	workers     sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: tracerShutdown,
	}
	healthHandler := health.NewHandler()

	st, err := a.openStore(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	var denylist repository.Denylist = memory.NewDenylist()
	if cfg.RedisAddr != "" {
		client, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			a.closeResources()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		denylist = redisrepo.NewDenylist(client)
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))
	} else {
		logger.Warn("REDIS_ADDR not set, access-token denylist is process-local")
	}

	var events service.EventPublisher = event.Discard{}
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(a.producer, logger)
		producer := a.producer
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("KAFKA_BROKERS not set, security events are discarded")
	}

	hashKey := cfg.TokenHashSecret
	if hashKey == "" {
		hashKey = cfg.JWTSecret
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	hasher := auth.NewTokenHasher(hashKey)
	rbacService := service.NewRBACService(st.rbac, logger)
	sessionService := service.NewSessionService(
		st.users, st.tokens, rbacService, denylist, jwtManager, hasher, events, cfg.Session(), logger,
	)
	authService := service.NewAuthService(st.users, sessionService, events, logger)
	enforcer := policy.NewEnforcer(rbacService, logger)
	trustedProxies, err := auth.ParseTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	clientIPs := auth.NewClientIPResolver(trustedProxies)
	limiter := handler.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateBurst, clientIPs, logger)

	router := handler.NewRouter(handler.Services{
		Auth:      authService,
		Sessions:  sessionService,
		RBAC:      rbacService,
		Enforcer:  enforcer,
		Limiter:   limiter,
		ClientIPs: clientIPs,
	}, healthHandler, logger, handler.RouterConfig{
		ServiceName:   cfg.ServiceName,
		CORS:          middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins},
		InternalCIDRs: cfg.InternalCIDRs,
		EnablePprof:   cfg.EnablePprof,
	})

	a.sessions = sessionService
	a.limiter = limiter
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, healthHandler *health.Handler) (stores, error) {
	if a.cfg.StoreDriver == config.StoreDriverMemory {
		store := memory.NewSeededStore()
		if err := a.seedDevAdmin(store); err != nil {
			return stores{}, err
		}
		a.logger.Warn("using in-memory store, data is lost on restart")
		return stores{users: store.Users(), rbac: store.RBAC(), tokens: store.RefreshTokens()}, nil
	}

	pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres(), a.logger)
	if err != nil {
		return stores{}, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", a.cfg.PostgresHost),
		slog.Int("port", a.cfg.PostgresPort),
		slog.String("database", a.cfg.PostgresDB),
	)

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, a.cfg.ServiceName); err != nil {
		return stores{}, fmt.Errorf("register pool metrics: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return stores{}, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	if a.cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(a.cfg.SlowQueryThreshold, a.logger)
	}

	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	return stores{
		users:  postgres.NewUserRepository(pool),
		rbac:   postgres.NewRBACRepository(pool),
		tokens: postgres.NewRefreshTokenRepository(pool),
	}, nil
}

// seedDevAdmin creates the bootstrap administrator of the in-memory store.
func (a *App) seedDevAdmin(store *memory.Store) error {
	if a.cfg.DevAdminEmail == "" || a.cfg.DevAdminPassword == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(a.cfg.DevAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash dev admin password: %w", err)
	}
	now := time.Now().UTC()
	u := store.AddUser(domain.User{
		Email:         a.cfg.DevAdminEmail,
		PasswordHash:  string(hash),
		Status:        domain.UserStatusActive,
		AuthProvider:  domain.AuthProviderLocal,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, domain.RoleAdmin)
	a.logger.Info("dev admin account created",
		slog.Int64("user_id", u.ID),
		slog.String("email", u.Email),
	)
	return nil
}

// Run starts the HTTP server and background workers and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	workerCtx, stop := context.WithCancel(context.Background())
	a.stopWorkers = stop

	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		a.limiter.Run(workerCtx)
	}()

	if a.cfg.RefreshTokenRetention > 0 {
		a.workers.Add(1)
		go func() {
			defer a.workers.Done()
			a.runTokenPurge(workerCtx, a.cfg.PurgeInterval, a.cfg.RefreshTokenRetention)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// runTokenPurge periodically deletes refresh tokens that expired more than
// retention ago.
func (a *App) runTokenPurge(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("refresh token purge worker started",
		slog.Duration("interval", interval),
		slog.Duration("retention", retention),
	)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("refresh token purge worker stopped")
			return
		case <-ticker.C:
			purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if _, err := a.sessions.PurgeExpired(purgeCtx, retention); err != nil {
				a.logger.Error("refresh token purge failed",
					slog.String("error", err.Error()),
				)
			}
			cancel()
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Background workers
// 3. Tracer (flush pending spans from drained requests)
// 4. Kafka producer, Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.stopWorkers != nil {
		a.stopWorkers()
	}
	a.workers.Wait()

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeClients()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases whatever NewApp opened before failing.
func (a *App) closeResources() {
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.tracerShutdown(ctx)
	}
	_ = a.closeClients()
}

func (a *App) closeClients() []error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errs
}
