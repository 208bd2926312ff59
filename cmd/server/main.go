package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mediasite-provisioning/internal/canvas"
	"mediasite-provisioning/internal/config"
	"mediasite-provisioning/internal/logging"
	"mediasite-provisioning/internal/mediasite"
	"mediasite-provisioning/internal/server"
	"mediasite-provisioning/internal/store"
)

func main() {
	envFile := flag.String("env", ".env", "env file to load before the process environment")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	host := mediasite.New(cfg.MediasiteURL, cfg.MediasiteUser, cfg.MediasitePass, cfg.MediasiteAPIKey,
		mediasite.WithHTTPClient(&http.Client{Timeout: cfg.MediasiteTimeout}),
		mediasite.WithRateLimit(cfg.MediasiteRPS, 1),
		mediasite.WithLogger(log.Named("mediasite")),
	)
	oauth := canvas.NewOAuth(cfg.CanvasURL, cfg.CanvasClientID, cfg.CanvasClientSecret, cfg.OAuthRedirectURI)
	canvasLog := log.Named("canvas")

	srv := server.New(server.Deps{
		Store:  st,
		OAuth:  oauth,
		Logger: log.Named("http"),
		NewCanvas: func(token string) server.Canvas {
			c := canvas.New(cfg.CanvasURL, token)
			c.PageSize = cfg.CanvasPageSize
			c.Log = canvasLog
			return c
		},
		Host:          host,
		Options:       cfg.ProvisioningOptions(),
		ProvisionRate: cfg.ProvisionRateLimit,
		Production:    cfg.AppProduction,
	})

	httpServer := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.AppAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
