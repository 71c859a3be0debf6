package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-auth/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth/internal/notify"
	"github.com/ovaphlow/pitchfork/service-auth/internal/password"
	"github.com/ovaphlow/pitchfork/service-auth/internal/provider"
	"github.com/ovaphlow/pitchfork/service-auth/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-auth/internal/role"
	rolerepo "github.com/ovaphlow/pitchfork/service-auth/internal/role/repo"
	"github.com/ovaphlow/pitchfork/service-auth/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth/internal/telemetry"
	"github.com/ovaphlow/pitchfork/service-auth/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth/pkg/utilities"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := utilities.SetSnowflakeNode(cfg.SnowflakeNode); err != nil {
		fmt.Fprintf(os.Stderr, "snowflake node: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(utilities.Config{Level: cfg.Log.Level, Dev: cfg.Log.Dev, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("service stopped", "err", err)
		_ = lg.Sync()
		os.Exit(1)
	}
	sugar.Info("goodbye")
}

func run(cfg *config.Config, sugar *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("starting", "service", cfg.ServiceName, "addr", cfg.HTTPAddr)

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			sugar.Warnw("tracer shutdown failed", "err", err)
		}
	}()

	if cfg.Database.MigrateOnStart {
		if err := database.MigrateUp(cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		sugar.Info("migrations applied")
	}
	db, err := database.Open(database.Config{
		DSN:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		TimeZone:       cfg.Database.TimeZone,
		ClientEncoding: cfg.Database.ClientEncoding,
	})
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	pg := store.NewPostgres(db)

	issuer, err := token.NewIssuer(token.Config{
		Issuer:        cfg.JWT.Issuer,
		KeyID:         cfg.JWT.KeyID,
		AccessSecret:  []byte(cfg.JWT.AccessSecret),
		RefreshSecret: []byte(cfg.JWT.RefreshSecret),
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	var verifier provider.Verifier
	if cfg.Google.ClientID != "" {
		verifier = provider.NewGoogle(cfg.Google.ClientID, cfg.Google.TokenInfoURL)
	}

	svc, err := auth.NewService(auth.Deps{
		Store:    pg,
		Hasher:   password.NewCodec(cfg.Password.BcryptCost),
		Tokens:   issuer,
		Notifier: notifier(cfg.Notify, sugar),
		Verifier: verifier,
		Metrics:  collector,
		Logger:   sugar.Named("auth"),
	}, auth.Config{AppName: cfg.AppName, NotifyTimeout: cfg.Notify.Timeout})
	if err != nil {
		return err
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	handler := router.New(router.Deps{
		Auth:       auth.NewHandler(svc, sugar.Named("http")),
		Roles:      role.NewHandler(role.NewService(rolerepo.NewRepo(db)), sugar.Named("roles")),
		DB:         db,
		Limiter:    limiter,
		Metrics:    collector,
		Gatherer:   metrics.Handler(reg),
		TrustProxy: cfg.TrustProxy,
		Logger:     sugar.Named("http"),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sugar.Infow("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return store.RunJanitor(gctx, pg, cfg.Janitor.Interval, cfg.Janitor.Retention, sugar.Named("janitor"))
	})
	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			sugar.Warnw("http server shutdown failed", "err", err)
		}
		return nil
	})
	return g.Wait()
}

func notifier(cfg config.Notify, sugar *zap.SugaredLogger) notify.Dispatcher {
	if cfg.Driver == "log" {
		return notify.LogDispatcher{Logger: sugar.Named("notify"), Verbose: cfg.Verbose}
	}
	m := notify.Multi{Mail: notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		StartTLS: cfg.SMTPStartTLS,
	})}
	if cfg.SMSURL != "" {
		m.SMS = notify.NewSMSGateway(cfg.SMSURL, cfg.SMSToken, cfg.SMSSender)
	}
	return m
}

// newLimiter prefers Redis so replicas share one budget.
func newLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func(), error) {
	if cfg.Redis.Addr == "" {
		l := ratelimit.NewLocal(cfg.Limits.PerMinute, cfg.Limits.Burst, 5*time.Minute)
		return l, l.Stop, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return ratelimit.NewRedis(client, "auth:rl:", cfg.Limits.PerMinute, time.Minute), func() { _ = client.Close() }, nil
}
