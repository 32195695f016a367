// Package server wires the bets service, its stores and background workers
// behind the HTTP API.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/betdapp/socialbets-smartcontracts/internal/admin"
	"github.com/betdapp/socialbets-smartcontracts/internal/auth"
	"github.com/betdapp/socialbets-smartcontracts/internal/bets"
	"github.com/betdapp/socialbets-smartcontracts/internal/chain"
	"github.com/betdapp/socialbets-smartcontracts/internal/circuitbreaker"
	"github.com/betdapp/socialbets-smartcontracts/internal/config"
	"github.com/betdapp/socialbets-smartcontracts/internal/eventlog"
	"github.com/betdapp/socialbets-smartcontracts/internal/health"
	"github.com/betdapp/socialbets-smartcontracts/internal/keeper"
	"github.com/betdapp/socialbets-smartcontracts/internal/ledger"
	"github.com/betdapp/socialbets-smartcontracts/internal/logging"
	"github.com/betdapp/socialbets-smartcontracts/internal/metrics"
	"github.com/betdapp/socialbets-smartcontracts/internal/ratelimit"
	"github.com/betdapp/socialbets-smartcontracts/internal/realtime"
	"github.com/betdapp/socialbets-smartcontracts/internal/reconciliation"
	"github.com/betdapp/socialbets-smartcontracts/internal/security"
	"github.com/betdapp/socialbets-smartcontracts/internal/traces"
	"github.com/betdapp/socialbets-smartcontracts/internal/validation"
	"github.com/betdapp/socialbets-smartcontracts/internal/watcher"
)

// Version is reported by /v1 and the trace resource. Set by ldflags in cmd/server.
var Version = "dev"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	db             *sql.DB       // nil if using in-memory
	redis          *redis.Client // nil without REDIS_URL
	accounts       bets.AccountChecker
	chain          *chain.Checker // nil without RPC_URL
	rpcBreaker     *circuitbreaker.Breaker
	deposits       *watcher.Watcher // nil without DEPOSIT_ADDRESS
	ledger         *ledger.Ledger
	bets           *bets.Service
	realtimeHub    *realtime.Hub
	eventLog       *eventlog.Log
	keeper         *keeper.Keeper
	reconciler     *reconciliation.Runner
	reconcileTimer *reconciliation.Timer
	rateLimiter    *ratelimit.Limiter
	health         *health.Registry
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	clock          func() time.Time
	drainDelay     time.Duration
	traceShutdown  func(context.Context) error
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAccountChecker replaces the RPC contract check (for testing).
func WithAccountChecker(a bets.AccountChecker) Option {
	return func(s *Server) {
		s.accounts = a
	}
}

// WithClock sets the bets service clock (for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.clock = now
	}
}

// WithDrainDelay sets how long Shutdown waits before closing listeners.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		drainDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, Version, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.traceShutdown = shutdown

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory
	var (
		betStore    bets.Store
		ledgerStore ledger.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		betStore = bets.NewPostgresStore(db)
		ledgerStore = ledger.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		betStore = bets.NewMemoryStore()
		ledgerStore = ledger.NewMemoryStore()
		s.logger.Warn("DATABASE_URL not set, state is in-memory and lost on restart")
	}
	s.ledger = ledger.New(ledgerStore)

	// Contract detection for private-bet second parties, and the deposit
	// watcher. Both share one RPC connection.
	var rpc *ethclient.Client
	if cfg.RPCURL != "" {
		rpc, err = ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", chain.ErrRPCConnection, err)
		}
		s.rpcBreaker = circuitbreaker.New(5, 30*time.Second)
		s.rpcBreaker.OnTransition(func(key string, from, to circuitbreaker.State) {
			s.logger.Warn("rpc circuit changed", "key", key, "from", from.String(), "to", to.String())
		})
		checker, err := chain.New(ctx, "", chain.WithClient(rpc), chain.WithBreaker(s.rpcBreaker))
		if err != nil {
			rpc.Close()
			return nil, err
		}
		s.chain = checker
	}
	if s.accounts == nil {
		if s.chain != nil {
			s.accounts = s.chain
		} else {
			s.accounts = chain.Static{}
			s.logger.Warn("RPC_URL not set, contract second parties are not detected")
		}
	}
	if rpc != nil && cfg.DepositAddress != (common.Address{}) {
		s.deposits = watcher.New(rpc, watcher.Config{
			DepositAddress: cfg.DepositAddress,
			PollInterval:   cfg.DepositPollInterval,
			Confirmations:  cfg.DepositConfirmations,
			StartBlock:     cfg.DepositStartBlock,
		}, s.ledger, s.logger).WithBreaker(s.rpcBreaker)
	}

	// Event sinks
	s.realtimeHub = realtime.NewHub(s.logger)
	sinks := bets.FanOut{s.realtimeHub}
	if cfg.RedisURL != "" {
		client, err := eventlog.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.redis = client
		s.eventLog = eventlog.New(client, s.logger)
		sinks = append(sinks, s.eventLog)
		s.logger.Info("publishing events to redis stream", "stream", eventlog.DefaultStream)
	}

	s.bets = bets.NewService(betStore, s.ledger, s.accounts).
		WithEvents(sinks).
		WithLogger(s.logger)
	if s.clock != nil {
		s.bets = s.bets.WithClock(s.clock)
	}
	params, err := s.bets.Init(ctx, cfg.Genesis())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bets: %w", err)
	}
	s.logger.Info("bets initialized",
		"owner", params.Owner.Hex(),
		"fee_bps", params.FeePercentage,
		"default_mediator", params.DefaultMediator.Hex(),
		"paused", params.Paused,
	)

	if cfg.KeeperEnabled {
		key, err := crypto.HexToECDSA(cfg.KeeperPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid KEEPER_PRIVATE_KEY: %w", err)
		}
		s.keeper = keeper.New(s.bets, crypto.PubkeyToAddress(key.PublicKey), s.logger).
			WithInterval(cfg.KeeperInterval)
		s.logger.Info("keeper enabled", "address", s.keeper.Address().Hex(), "interval", cfg.KeeperInterval)
	}

	s.reconciler = reconciliation.NewRunner(s.ledger, s.bets, s.logger)
	if s.db != nil {
		s.reconciler = s.reconciler.WithStore(reconciliation.NewPostgresStore(s.db))
	}
	s.reconcileTimer = reconciliation.NewTimer(s.reconciler, cfg.ReconcileInterval, s.logger)

	s.setupHealth()

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupHealth() {
	s.health = health.NewRegistry()
	s.health.Register("bets", func(ctx context.Context) health.Status {
		if _, err := s.bets.Params(ctx); err != nil {
			return health.Status{Name: "bets", Detail: err.Error()}
		}
		return health.Status{Name: "bets", Healthy: true}
	})
	if s.db != nil {
		s.health.Register("database", health.Database("database", s.db))
	}
	if s.redis != nil {
		s.health.Register("redis", health.Redis("redis", s.redis))
	}
	if s.keeper != nil {
		s.health.Register("keeper", health.Running("keeper", s.keeper.Running))
	}
	if s.deposits != nil {
		s.health.Register("deposits", health.Running("deposits", s.deposits.Running))
	}
	if s.rpcBreaker != nil {
		s.health.Register("rpc", func(context.Context) health.Status {
			if s.rpcBreaker.State(chain.BreakerKey) == circuitbreaker.StateOpen {
				return health.Status{Name: "rpc", Detail: "circuit open"}
			}
			return health.Status{Name: "rpc", Healthy: true}
		})
	}
	s.health.Register("reconciliation", func(ctx context.Context) health.Status {
		latest := s.reconciler.Latest()
		if latest != nil && latest.Mismatch {
			return health.Status{Name: "reconciliation", Detail: "custody mismatch: diff " + latest.Diff.String()}
		}
		return health.Status{Name: "reconciliation", Healthy: true}
	})
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(nil))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())

	// Signature check before the limiter so signed callers get their own bucket.
	s.router.Use(auth.Middleware(auth.NewVerifier(s.cfg.AuthMaxSkew)))

	rl := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rl.RequestsPerMinute = s.cfg.RateLimitRPM
		rl.BurstSize = max(rl.BurstSize, s.cfg.RateLimitRPM/6)
	}
	s.rateLimiter = ratelimit.New(rl)
	s.router.Use(s.rateLimiter.Middleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if caller, ok := auth.GetCaller(c); ok {
			attrs = append(attrs, "caller", caller.Hex())
		}

		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health.Handler())
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	betsHandler := bets.NewHandler(s.bets)
	ledgerHandler := ledger.NewHandler(s.ledger, s.logger)
	adminHandler := admin.NewHandler(s.bets).WithHub(s.realtimeHub)
	if s.keeper != nil {
		adminHandler = adminHandler.WithKeeper(s.keeper)
	}

	v1 := s.router.Group("/v1")
	v1.GET("", s.infoHandler)
	v1.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
	betsHandler.RegisterRoutes(v1)
	ledgerHandler.RegisterRoutes(v1)

	protected := v1.Group("", auth.RequireAuth())
	betsHandler.RegisterProtectedRoutes(protected)
	ledgerHandler.RegisterProtectedRoutes(protected)

	owner := v1.Group("", auth.RequireOwner(betsHandler.OwnerAddress))
	betsHandler.RegisterAdminRoutes(owner)
	ledgerHandler.RegisterAdminRoutes(owner)
	reconciliation.NewHandler(s.reconciler).RegisterAdminRoutes(owner)
	adminHandler.RegisterRoutes(owner)
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	var keeperAddr *common.Address
	if s.keeper != nil {
		a := s.keeper.Address()
		keeperAddr = &a
	}
	c.JSON(http.StatusOK, gin.H{
		"name":      "socialbets",
		"version":   Version,
		"env":       s.cfg.Env,
		"storage":   map[bool]string{true: "postgres", false: "memory"}[s.db != nil],
		"eventLog":  s.eventLog != nil,
		"keeper":    keeperAddr,
		"deposits":  s.deposits != nil,
		"websocket": "/v1/ws",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and background workers, and blocks until a
// signal, ctx cancellation or a listener error.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)
	if s.keeper != nil {
		go s.keeper.Start(runCtx)
	}
	go s.reconcileTimer.Start(runCtx)
	if s.deposits != nil {
		if err := s.deposits.Start(runCtx); err != nil {
			s.logger.Error("deposit watcher not started", "error", err)
		}
	}
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	s.ready.Store(true)
	s.logger.Info("server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server and releases its connections.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	if s.keeper != nil {
		s.keeper.Stop()
		s.logger.Info("keeper stopped")
	}
	if s.deposits != nil {
		s.deposits.Stop()
	}
	s.reconcileTimer.Stop()
	s.rateLimiter.Stop()

	if s.chain != nil {
		s.chain.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}
	if err := s.traceShutdown(ctx); err != nil {
		s.logger.Error("trace exporter shutdown error", "error", err)
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Bets returns the bets service.
func (s *Server) Bets() *bets.Service {
	return s.bets
}

// Ledger returns the custody ledger.
func (s *Server) Ledger() *ledger.Ledger {
	return s.ledger
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
