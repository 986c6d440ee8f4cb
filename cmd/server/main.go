package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harrylevesque/stationbook/internal/api"
	"github.com/harrylevesque/stationbook/internal/auth"
	"github.com/harrylevesque/stationbook/internal/crypto"
	"github.com/harrylevesque/stationbook/internal/storage"
	"github.com/harrylevesque/stationbook/internal/utils"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		log.Printf("stationbook: %v", err)
		os.Exit(1)
	}
}

// run serves until ctx is done or the listener fails. Every resource it opens
// is closed before it returns.
func run(ctx context.Context) error {
	cfg, err := utils.LoadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := utils.NewStreamLogger(os.Stderr)
	if cfg.LogFile != "" {
		logger, err = utils.NewLogger(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
	}
	defer logger.Close()

	masterKey, err := crypto.ReadMasterKey(cfg.MasterKeyHex, cfg.MasterKeyFile)
	if err != nil {
		return fmt.Errorf("master key: %w", err)
	}
	sessionKey, err := crypto.DeriveSessionKey(masterKey)
	if err != nil {
		return fmt.Errorf("session key: %w", err)
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	authSvc, err := auth.New(store, auth.Options{
		SigningKey:    sessionKey,
		SessionTTL:    cfg.SessionTTL,
		SecureCookies: cfg.SecureCookies,
	})
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Dependencies{
			Auth:         authSvc,
			Profiles:     store,
			Logger:       logger,
			LoginLimiter: auth.NewLoginLimiter(cfg.LoginRatePerMinute),
			GuardTimeout: cfg.GuardTimeout,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("server running on %s", cfg.HTTPAddr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("shutdown: %v", err)
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("serve: %v", err)
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}
