package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"complaintmap/libs/notice"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	sourceHTTP               = "http"
	sourcePostgres           = "postgres"
	sourceFetchTimeout       = 30 * time.Second
	minSigningSecretLength   = 16
	devCORSOriginLocalhost   = "http://localhost:5173"
	devCORSOriginLoopback    = "http://127.0.0.1:5173"
	trustedProxyLoopbackIPv4 = "127.0.0.1"
	trustedProxyLoopbackIPv6 = "::1"
)

type Config struct {
	Addr          string
	Env           string
	PublicBaseURL string

	ComplaintsSource        string
	ComplaintsURL           string
	ComplaintsSigningSecret string
	ComplaintsAdminID       string
	DatabaseURL             string

	PollInterval   time.Duration
	SourceCacheTTL time.Duration
	SessionTTL     time.Duration

	MapCenterLat        float64
	MapCenterLng        float64
	MapDefaultZoom      int
	MapMaxZoom          int
	NavigateZoom        int
	ClusterRadiusPx     float64
	RevealTimeout       time.Duration
	NavigateMaxAttempts int

	AlertEmailTo          []string
	AlertFailureThreshold int
	ResendAPIKey          string
	MailerFromAddresses   map[string]string
}

type App struct {
	cfg *Config
	db  *sql.DB
	log *slog.Logger

	source   ComplaintSource
	sessions *sessionRegistry
	metrics  *appMetrics
	health   *sourceHealth

	rateLimiterMu sync.Mutex
	rateBuckets   map[string]rateBucket
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

func main() {
	if err := loadDotEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			panic(err)
		}
		defer db.Close()
	}

	var provider notice.Provider
	if cfg.ResendAPIKey != "" {
		provider = notice.NewResendProvider(cfg.ResendAPIKey)
		logger.Info("notifier initialized", "provider", "resend")
	} else {
		provider = notice.NewLogProvider(logger)
		logger.Info("notifier initialized", "provider", "log")
	}
	notifier := notice.New(provider, cfg.MailerFromAddresses[provider.Name()], cfg.AlertEmailTo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(cfg, db, logger, notifier)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := app.runMigrations(ctx); err != nil {
			logger.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		logger.Info("migrate completed")
		return
	}

	if cfg.ComplaintsSource == sourcePostgres {
		if err := db.PingContext(ctx); err != nil {
			panic(err)
		}
		if err := app.runMigrations(ctx); err != nil {
			panic(err)
		}
	}

	app.startSourcePoller(ctx, cfg.PollInterval)
	app.startRateLimiterCleanup(ctx, rateLimiterCleanupInterval)

	r := app.router()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		panic(err)
	}

	server := &http.Server{Addr: cfg.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	app.log.Info("starting gin API", "addr", cfg.Addr, "source", cfg.ComplaintsSource)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}

func newApp(cfg *Config, db *sql.DB, logger *slog.Logger, notifier *notice.Notifier) *App {
	app := &App{
		cfg:         cfg,
		db:          db,
		log:         logger,
		metrics:     newAppMetrics(),
		rateBuckets: make(map[string]rateBucket),
	}

	var source ComplaintSource
	switch cfg.ComplaintsSource {
	case sourcePostgres:
		source = &postgresComplaintSource{db: db}
	default:
		source = newHTTPComplaintSource(cfg, nil)
	}
	app.source = newCachedComplaintSource(source, cfg.SourceCacheTTL)
	app.health = newSourceHealth(source.Name(), cfg.AlertFailureThreshold, notifier, logger)
	app.sessions = newSessionRegistry(cfg.SessionTTL, logger, func(count int) {
		app.metrics.sessions.Set(float64(count))
	})
	return app
}

func (a *App) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(a.loggingMiddleware())
	r.Use(a.corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": a.sessions.count(),
			"source":   a.health.status(),
		})
	})
	r.GET("/metrics", gin.WrapH(a.metrics.handler()))

	api := r.Group("/api/v1")
	a.registerMapRoutes(api)
	return r
}

func loadConfig() (*Config, error) {
	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "development"
	}

	publicBase := strings.TrimRight(valueOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/")

	cfg := &Config{
		Addr:                    valueOrDefault("GIN_ADDR", ":8080"),
		Env:                     env,
		PublicBaseURL:           publicBase,
		ComplaintsSource:        strings.ToLower(valueOrDefault("COMPLAINTS_SOURCE", sourceHTTP)),
		ComplaintsURL:           strings.TrimSpace(os.Getenv("COMPLAINTS_URL")),
		ComplaintsSigningSecret: strings.TrimSpace(os.Getenv("COMPLAINTS_SIGNING_SECRET")),
		ComplaintsAdminID:       valueOrDefault("COMPLAINTS_ADMIN_ID", "1"),
		DatabaseURL:             databaseURLFromEnv(),
		ResendAPIKey:            strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		MailerFromAddresses: map[string]string{
			"resend": valueOrDefault("MAILER_FROM_ADDRESS_RESEND", "alerts@complaintmap.local"),
			"log":    valueOrDefault("MAILER_FROM_ADDRESS_LOG", "alerts@complaintmap.local"),
		},
	}
	for _, to := range strings.Split(os.Getenv("ALERT_EMAIL_TO"), ",") {
		if to = strings.TrimSpace(to); to != "" {
			cfg.AlertEmailTo = append(cfg.AlertEmailTo, to)
		}
	}

	switch cfg.ComplaintsSource {
	case sourceHTTP:
		if cfg.ComplaintsURL == "" {
			return nil, fmt.Errorf("COMPLAINTS_URL must be configured when COMPLAINTS_SOURCE=http")
		}
		if len(cfg.ComplaintsSigningSecret) < minSigningSecretLength {
			return nil, fmt.Errorf("COMPLAINTS_SIGNING_SECRET must be at least %d characters", minSigningSecretLength)
		}
	case sourcePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL or PG*/POSTGRES_* variables must be configured when COMPLAINTS_SOURCE=postgres")
		}
	default:
		return nil, fmt.Errorf("COMPLAINTS_SOURCE must be 'http' or 'postgres'")
	}

	var err error
	if cfg.PollInterval, err = durationFromEnv("POLL_INTERVAL", time.Minute, 0); err != nil {
		return nil, err
	}
	if cfg.SourceCacheTTL, err = durationFromEnv("SOURCE_CACHE_TTL", 10*time.Second, 0); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = durationFromEnv("SESSION_TTL", 30*time.Minute, time.Minute); err != nil {
		return nil, err
	}
	if cfg.RevealTimeout, err = durationFromEnv("REVEAL_TIMEOUT", 2*time.Second, 10*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.MapCenterLat, err = floatFromEnv("MAP_CENTER_LAT", 18.5204, -90, 90); err != nil {
		return nil, err
	}
	if cfg.MapCenterLng, err = floatFromEnv("MAP_CENTER_LNG", 73.8567, -180, 180); err != nil {
		return nil, err
	}
	if cfg.ClusterRadiusPx, err = floatFromEnv("CLUSTER_RADIUS_PX", 80, 1, 1000); err != nil {
		return nil, err
	}
	if cfg.MapMaxZoom, err = intFromEnv("MAP_MAX_ZOOM", 20, 1, 24); err != nil {
		return nil, err
	}
	if cfg.MapDefaultZoom, err = intFromEnv("MAP_DEFAULT_ZOOM", 12, 0, cfg.MapMaxZoom); err != nil {
		return nil, err
	}
	if cfg.NavigateZoom, err = intFromEnv("NAVIGATE_ZOOM", 17, 0, cfg.MapMaxZoom); err != nil {
		return nil, err
	}
	if cfg.NavigateMaxAttempts, err = intFromEnv("NAVIGATE_MAX_ATTEMPTS", 3, 1, 100); err != nil {
		return nil, err
	}
	if cfg.AlertFailureThreshold, err = intFromEnv("ALERT_FAILURE_THRESHOLD", 3, 1, 1000); err != nil {
		return nil, err
	}

	return cfg, nil
}

func databaseURLFromEnv() string {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL != "" {
		return databaseURL
	}
	host := valueFromEnvKeys("PGHOST", "POSTGRES_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := valueFromEnvKeys("PGPORT", "POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	dbname := valueFromEnvKeys("PGDATABASE", "POSTGRES_DB")
	user := valueFromEnvKeys("PGUSER", "POSTGRES_USER")
	password := valueFromEnvKeys("PGPASSWORD", "POSTGRES_PASSWORD")
	sslmode := valueFromEnvKeys("PGSSLMODE", "POSTGRES_SSLMODE")
	if sslmode == "" {
		sslmode = "disable"
	}
	if dbname == "" || user == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, dbname, sslmode)
}

func loadDotEnvFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.Trim(strings.TrimSpace(line[idx+1:]), "\"")
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func valueFromEnvKeys(keys ...string) string {
	for _, key := range keys {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" {
			return value
		}
	}
	return ""
}

// durationFromEnv parses a Go duration. With a zero floor, 0 is accepted and
// callers read it as "off".
func durationFromEnv(key string, fallback, floor time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration such as 30s or 5m", key)
	}
	if parsed < floor || parsed < 0 {
		return 0, fmt.Errorf("%s must be >= %s", key, floor)
	}
	return parsed, nil
}

func intFromEnv(key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer", key)
	}
	if parsed < lo || parsed > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", key, lo, hi)
	}
	return parsed, nil
}

func floatFromEnv(key string, fallback, lo, hi float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number", key)
	}
	if parsed < lo || parsed > hi {
		return 0, fmt.Errorf("%s must be between %g and %g", key, lo, hi)
	}
	return parsed, nil
}

func (a *App) runMigrations(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("migrations need DATABASE_URL or PG*/POSTGRES_* variables")
	}
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}

	if _, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		var exists bool
		if err := a.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, file).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}

		content, err := migrationFiles.ReadFile(filepath.Join("migrations", file))
		if err != nil {
			return err
		}

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		a.log.Info("applied migration", "file", file)
	}

	return nil
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if a.isAllowedCORSOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || a.cfg == nil {
		return false
	}
	if a.cfg.PublicBaseURL != "" && origin == a.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(a.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

func writeAPIError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Code, "message": apiErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}
