package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skinvault/internal/backend"
	"skinvault/internal/chain"
	"skinvault/internal/config"
	"skinvault/internal/escrow"
	"skinvault/internal/idempotency"
	"skinvault/internal/server"
	"skinvault/internal/session"
)

func main() {
	cfg, err := config.Load("config.toml")
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx := context.Background()

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Error("idempotency store error", "err", err)
		os.Exit(1)
	}

	rpcClient, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		logger.Error("chain rpc error", "url", cfg.Chain.RPCURL, "err", err)
		os.Exit(1)
	}
	defer rpcClient.Close()

	signer, err := chain.NewLocalSignerFromSeed(cfg.Chain.KeySeed, rpcClient)
	if err != nil {
		logger.Error("signing key error", "err", err)
		os.Exit(1)
	}

	sess := session.New(signer)
	if addrStore, err := session.NewAddressStore(cfg.Service.AddressStorePath); err == nil {
		if err := addrStore.Save(sess.Address); err != nil {
			logger.Warn("address store save failed", "err", err)
		}
	}

	origin := cfg.Backend.Origin
	if origin == "" {
		origin = backend.ResolveOrigin(cfg.Backend.Environment)
	}
	gateway := backend.NewClient(origin)

	orch := escrow.NewOrchestrator(gateway, chain.NewLocator(rpcClient), escrow.Config{
		PackageID:      cfg.Chain.PackageID,
		AdvisoryEpochs: cfg.Backend.AdvisoryEpochs,
	}, logger)

	apiServer := server.NewServer(cfg, orch, gateway, sess, store, logger)
	apiServer.SetRPCHealth(rpcClient.Ping)

	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}

// newStore prefers Postgres when a DSN is configured and falls back to the
// file-backed store otherwise.
func newStore(ctx context.Context, cfg *config.Config) (idempotency.Store, error) {
	if cfg.Service.PostgresDSN != "" {
		return idempotency.NewPostgresStore(ctx, cfg.Service.PostgresDSN)
	}
	return idempotency.NewFileStore(cfg.Service.IdempotencyStorePath)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
