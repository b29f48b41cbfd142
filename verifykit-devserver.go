package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authhttp "github.com/PaulFidika/verifykit/adapters/http"
	"github.com/PaulFidika/verifykit/core"
	jwtkit "github.com/PaulFidika/verifykit/jwt"
	"github.com/PaulFidika/verifykit/metrics"
	"github.com/PaulFidika/verifykit/notify"
	"github.com/PaulFidika/verifykit/riverjobs"
	memorystore "github.com/PaulFidika/verifykit/storage/memory"
	pgstore "github.com/PaulFidika/verifykit/storage/postgres"
	"github.com/caarlos0/env/v11"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type config struct {
	ListenAddr     string   `env:"VERIFYKIT_LISTEN_ADDR" envDefault:":8080"`
	Issuer         string   `env:"VERIFYKIT_ISSUER,required"`
	Audience       string   `env:"VERIFYKIT_AUDIENCE" envDefault:"verifykit"`
	DBURL          string   `env:"DB_URL,required"`
	RedisURL       string   `env:"REDIS_URL"`
	BaseURL        string   `env:"VERIFYKIT_BASE_URL" envDefault:"http://localhost:3000"`
	CodeSecret     string   `env:"VERIFYKIT_CODE_SECRET"`
	JWTKeyFile     string   `env:"VERIFYKIT_JWT_KEY_FILE"`
	JWTKeyID       string   `env:"VERIFYKIT_JWT_KID" envDefault:"dev"`
	DevMode        bool     `env:"VERIFYKIT_DEV_MODE" envDefault:"false"`
	DevMintSecret  string   `env:"VERIFYKIT_DEV_MINT_SECRET"`
	MigrateOnStart bool     `env:"VERIFYKIT_MIGRATE_ON_START" envDefault:"true"`
	ExpirySchedule string   `env:"VERIFYKIT_INVITATION_EXPIRY_CRON" envDefault:"*/15 * * * *"`
	OTLPEndpoint   string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel       string   `env:"VERIFYKIT_LOG_LEVEL" envDefault:"info"`
	TrustedProxies []string `env:"VERIFYKIT_TRUSTED_PROXIES" envSeparator:","`

	SMTP struct {
		Host     string `env:"HOST"`
		Port     int    `env:"PORT" envDefault:"587"`
		Username string `env:"USERNAME"`
		Password string `env:"PASSWORD"`
		From     string `env:"FROM" envDefault:"no-reply@localhost"`
	} `envPrefix:"SMTP_"`
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fatal(err)
	}
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	cmd := "serve"
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		cmd = strings.TrimSpace(os.Args[1])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg, log)
	case "migrate":
		err = runMigrate(ctx, cfg)
	default:
		err = fmt.Errorf("unknown command %q (supported: serve, migrate)", cmd)
	}
	if err != nil {
		fatal(err)
	}
}

func loadConfig() (*config, error) {
	c := &config{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	c.Issuer = strings.TrimRight(strings.TrimSpace(c.Issuer), "/")
	if c.DevMode && c.DevMintSecret == "" {
		return nil, fmt.Errorf("VERIFYKIT_DEV_MINT_SECRET is required when VERIFYKIT_DEV_MODE=true")
	}
	return c, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func runServe(ctx context.Context, cfg *config, log *slog.Logger) error {
	shutdownTracing, err := setupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := pgstore.Open(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := pgstore.Migrate(ctx, db); err != nil {
			return err
		}
	}

	signer, err := loadSigner(cfg.JWTKeyFile, cfg.JWTKeyID)
	if err != nil {
		return fmt.Errorf("load jwt key: %w", err)
	}
	keys := jwtkit.NewKeyset(signer)

	m := metrics.New(nil)
	var outbox *notify.Outbox
	notifier := notify.Multi{}
	if cfg.SMTP.Host != "" {
		notifier = append(notifier, notify.NewSMTPSender(notify.SMTPConfig{
			Host: cfg.SMTP.Host, Port: cfg.SMTP.Port,
			Username: cfg.SMTP.Username, Password: cfg.SMTP.Password, From: cfg.SMTP.From,
		}))
	} else {
		notifier = append(notifier, notify.LogSender{Log: log})
	}
	if cfg.DevMode {
		outbox = notify.NewOutbox(20)
		notifier = append(notifier, outbox)
	}

	svc := core.NewService(core.Config{BaseURL: cfg.BaseURL, CodeSecret: cfg.CodeSecret}, pgstore.New(db)).
		WithNotifier(notifier).
		WithRecorder(m).
		WithLogger(log).
		WithEphemeralStore(memorystore.NewKV(), core.EphemeralMemory)

	api := authhttp.NewService(svc, keys, authhttp.Options{Issuer: cfg.Issuer, Audience: cfg.Audience}).WithLogger(log)
	if len(cfg.TrustedProxies) > 0 {
		trusted, err := authhttp.ParseTrustedProxies(cfg.TrustedProxies)
		if err != nil {
			return fmt.Errorf("parse VERIFYKIT_TRUSTED_PROXIES: %w", err)
		}
		api.WithClientIPFunc(authhttp.ClientIPFromForwardedHeaders(trusted))
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		api.WithRedis(rdb)
	} else {
		log.Warn("verifykit: REDIS_URL not set; rate limits and reset markers are per-process")
	}

	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	jobs, err := startJobs(ctx, pool, api.Core(), cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = jobs.Stop(stopCtx)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.Handle("GET /metrics", m.Handler())
	if cfg.DevMode {
		log.Warn("verifykit: dev mode enabled; /dev routes expose codes and mint tokens")
		mux.Handle("GET /dev/outbox", devOutboxHandler(outbox, cfg.DevMintSecret))
		mux.Handle("POST /dev/mint", devMintHandler(cfg.Issuer, cfg.Audience, signer, cfg.DevMintSecret))
	}
	mux.Handle("/", api.APIHandler())

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           m.Instrument(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("verifykit: listening", "addr", cfg.ListenAddr)
		errc <- server.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runMigrate(ctx context.Context, cfg *config) error {
	db, err := pgstore.Open(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := pgstore.Migrate(ctx, db); err != nil {
		return err
	}
	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	return migrateRiver(ctx, pool)
}

func migrateRiver(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("river migrate: %w", err)
	}
	return nil
}

// startJobs runs the invitation expiry sweep on River.
func startJobs(ctx context.Context, pool *pgxpool.Pool, svc *core.Service, cfg *config, log *slog.Logger) (*river.Client[pgx.Tx], error) {
	if cfg.MigrateOnStart {
		if err := migrateRiver(ctx, pool); err != nil {
			return nil, err
		}
	}
	workers := river.NewWorkers()
	riverjobs.RegisterExpireInvitationsWorker(workers, svc, log)
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  map[string]river.QueueConfig{river.QueueDefault: {MaxWorkers: 2}},
		Workers: workers,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("river client: %w", err)
	}
	if err := riverjobs.AddExpireInvitationsPeriodicJob(client, cfg.ExpirySchedule, riverjobs.ExpireInvitationsArgs{}, true); err != nil {
		return nil, err
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("river start: %w", err)
	}
	return client, nil
}

func setupTracing(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if strings.TrimSpace(endpoint) == "" {
		return noop, nil
	}
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", "verifykit")))
	if err != nil {
		return noop, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

func loadSigner(path, kid string) (*jwtkit.RSASigner, error) {
	if path == "" {
		slog.Warn("verifykit: VERIFYKIT_JWT_KEY_FILE not set; generating an ephemeral signing key")
		return jwtkit.NewRSASigner(2048, kid)
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, err
	}
	return jwtkit.NewRSASignerFromKey(key, kid), nil
}

func devOutboxHandler(outbox *notify.Outbox, secret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !devSecretOK(r.Header.Get("Authorization"), r.Header.Get("X-DEV-SECRET"), secret) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		address, err := core.NormalizeEmail(r.URL.Query().Get("address"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_email"})
			return
		}
		msgs := outbox.All(address)
		if msgs == nil {
			msgs = []notify.Delivered{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	})
}

type mintRequest struct {
	Sub              string `json:"sub"`
	Kind             string `json:"kind"`
	CompanyID        string `json:"company_id"`
	Email            string `json:"email"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

type mintResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// devMintHandler signs arbitrary account tokens so flows can be driven without a login service.
func devMintHandler(issuer, audience string, signer jwtkit.Signer, secret string) http.Handler {
	issuer = strings.TrimRight(strings.TrimSpace(issuer), "/")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !devSecretOK(r.Header.Get("Authorization"), r.Header.Get("X-DEV-SECRET"), secret) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}

		var req mintRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
			return
		}
		req.Sub = strings.TrimSpace(req.Sub)
		if req.Sub == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "sub is required"})
			return
		}

		expiresIn := req.ExpiresInSeconds
		if expiresIn <= 0 {
			expiresIn = 3600
		}
		now := time.Now()
		ttl := time.Duration(expiresIn) * time.Second

		claims := jwtkit.BaseRegisteredClaims(req.Sub, []string{audience}, now, ttl)
		claims["iss"] = issuer
		if k := strings.TrimSpace(req.Kind); k != "" {
			kind, err := core.ParseAccountKind(k)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			}
			claims["kind"] = string(kind)
		}
		if c := strings.TrimSpace(req.CompanyID); c != "" {
			claims["company_id"] = c
		}
		if e := strings.TrimSpace(req.Email); e != "" {
			claims["email"] = e
		}

		token, err := signer.Sign(r.Context(), claims)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to sign token"})
			return
		}
		writeJSON(w, http.StatusOK, mintResponse{
			Token:     token,
			TokenType: "Bearer",
			ExpiresAt: now.Add(ttl),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func devSecretOK(authHeader, devHeader, secret string) bool {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return false
	}

	if strings.TrimSpace(devHeader) != "" {
		return strings.TrimSpace(devHeader) == secret
	}

	authHeader = strings.TrimSpace(authHeader)
	const prefix = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authHeader), strings.ToLower(prefix)) {
		return false
	}
	return strings.TrimSpace(authHeader[len(prefix):]) == secret
}

func fatal(err error) {
	if err == nil {
		os.Exit(0)
	}
	if errors.Is(err, http.ErrServerClosed) {
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
