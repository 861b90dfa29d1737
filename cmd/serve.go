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

	"github.com/ISTE-SAL/InGress/internal/auth"
	"github.com/ISTE-SAL/InGress/internal/config"
	"github.com/ISTE-SAL/InGress/internal/handler"
	"github.com/ISTE-SAL/InGress/internal/prefs"
	"github.com/ISTE-SAL/InGress/internal/service"
	"github.com/ISTE-SAL/InGress/internal/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the check-in API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := commonRun()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// ── 1. Storage ────────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	prefStore, err := prefs.Open(cfg.PrefsDir, logger)
	if err != nil {
		return err
	}
	defer prefStore.Close()

	issuer, err := auth.NewIssuer(cfg.SessionSecret)
	if err != nil {
		return err
	}

	// ── 2. Wire up layers ─────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	codec := token.NewCodec(cfg.TokenSecret)
	if !codec.Signed() {
		logger.Warn("tokenSecret is empty, QR signatures are not checked", "component", programName)
	}
	events := service.NewEventService(st.events, st.participants, codec, logger)
	redemption := service.NewRedemptionService(st.participants, codec, logger, reg)
	selector := service.NewEventSelector(st.events, prefStore, logger)
	sessions := service.NewScanSessions(redemption, selector, cfg.DebounceWindow, logger)

	router := handler.NewRouter(handler.Deps{
		Events:      events,
		Sessions:    sessions,
		Issuer:      issuer,
		Gatherer:    reg,
		CORSOrigins: cfg.CORSOrigins,
		SessionTTL:  cfg.SessionTTL,
		Logger:      logger,
	})

	// ── 3. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "component", programName, "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	logger.Info("shutting down server", "component", programName)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped", "component", programName)
	return nil
}
