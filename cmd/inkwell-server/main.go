package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inkwell-blog/inkwell"
	"github.com/inkwell-blog/inkwell/httpapi"
	"github.com/inkwell-blog/inkwell/internal/config"
	"github.com/inkwell-blog/inkwell/internal/store/memory"
	"github.com/inkwell-blog/inkwell/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("configuration", zap.Error(err))
	}

	logger := buildLogger(cfg)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildLogger(cfg config.Config) *zap.Logger {
	var zc zap.Config
	if cfg.DevMode {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		zc.Level = lvl
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	accounts, settings, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engineCfg := inkwell.DefaultConfig()
	engineCfg.Tokens.AccessSecret = []byte(cfg.AccessSecret)
	engineCfg.Tokens.RefreshSecret = []byte(cfg.RefreshSecret)
	engineCfg.Tokens.AccessTTL = cfg.AccessTTL
	engineCfg.Tokens.RefreshTTL = cfg.RefreshTTL
	engineCfg.Lockout.Window = cfg.LockoutWindow
	engineCfg.OTP.TTL = cfg.OTPTTL
	engineCfg.OTP.IssueLimit = cfg.OTPIssueLimit
	engineCfg.OTP.IssueWindow = cfg.OTPIssueWindow

	engine, err := inkwell.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithSettingsStore(settings).
		WithSender(logSender{logger: logger.Named("sender")}).
		WithEventSink(inkwell.NewJSONWriterSink(os.Stdout)).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	api := httpapi.NewServer(engine, logger, httpapi.Options{
		SecureCookies: cfg.SecureCookies,
		RefreshTTL:    cfg.RefreshTTL,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildStores opens the postgres-backed stores when DATABASE_URL is set and
// falls back to the in-memory pair in dev mode.
func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (inkwell.AccountStore, inkwell.SettingsStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no DATABASE_URL, using in-memory stores")
		mem := memory.NewStore(5)
		return mem, mem, func() {}, nil
	}

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return nil, nil, nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	store := postgres.NewStore(pool)
	return store, store, pool.Close, nil
}

// logSender writes verification codes to the log instead of a delivery
// provider. Stand-in until an email/SMS integration is wired.
type logSender struct {
	logger *zap.Logger
}

func (s logSender) Send(_ context.Context, d inkwell.Delivery) error {
	s.logger.Info("otp delivery",
		zap.String("channel", string(d.Channel)),
		zap.String("destination", d.Destination),
		zap.String("code", d.Code),
	)
	return nil
}
