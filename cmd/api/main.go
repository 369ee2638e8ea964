package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/walletops/internal/api"
	"github.com/punchamoorthee/walletops/internal/config"
	"github.com/punchamoorthee/walletops/internal/domain"
	"github.com/punchamoorthee/walletops/internal/store/memory"
	"github.com/punchamoorthee/walletops/internal/store/postgres"
	"github.com/punchamoorthee/walletops/internal/wallet"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("loading config")
	}

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("opening store")
	}
	defer cleanup()

	svc := wallet.NewService(store, wallet.Config{
		TreasuryName:     cfg.Wallet.TreasuryName,
		DefaultAssetCode: cfg.Wallet.DefaultAssetCode,
		MaxPageSize:      cfg.Wallet.MaxPageSize,
	}, log)
	handler := api.NewHandler(svc, cfg.App.Env, log)

	r := mux.NewRouter()
	r.Use(api.Recoverer(log), api.RequestLogger(log))
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.Health).Methods(http.MethodGet)
	handler.Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Str("driver", cfg.DB.Driver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout)
	if cfg.App.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}
	return logger.With().Timestamp().Str("service", "walletops").Logger().Level(level)
}

// openStore picks the backing store by driver. The memory driver is for
// local development only; it boots with the default asset and treasury
// already provisioned so the API is usable immediately.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (wallet.Store, func(), error) {
	switch cfg.DB.Driver {
	case config.DriverMemory:
		store := memory.New()
		asset := store.Bootstrap("Gold Coins", cfg.Wallet.DefaultAssetCode, cfg.Wallet.TreasuryName)
		for _, owner := range []string{"Chakradhar", "Vinod"} {
			store.AddAccount(domain.AccountUser, owner, owner, asset.ID)
		}
		log.Warn().Str("asset_code", asset.Code).Msg("using in-memory store, state will not survive restarts")
		return store, func() {}, nil
	default:
		store, err := postgres.New(ctx, cfg.DB.DSN, cfg.DB.LockTimeout)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
}
