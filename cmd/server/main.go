package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rpsarena/internal/config"
	"rpsarena/internal/httpapi"
	"rpsarena/internal/hub"
	"rpsarena/internal/room"
	"rpsarena/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("bad configuration", zap.Error(err))
	}

	log := newLogger(cfg.Debug)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var variant room.Variant = room.PointsVariant{}
	if cfg.Variant == "turns" {
		variant = room.TurnVariant{}
	}
	game := room.GameConfig{
		Variant:              variant,
		AllowToggleReady:     cfg.ReadyToggle,
		ReshuffleEachSession: cfg.ReshuffleTurnOrder,
	}

	// the hub outlives the signal context so shutdown can still drain rooms
	h := hub.New(context.Background(), log, game)
	srv := server.New(h, log)

	api := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(h, srv, log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.TCPAddr)
	})
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := api.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = api.Shutdown(shutdownCtx)
		h.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("shut down cleanly")
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		log, _ := zap.NewDevelopment()
		return log
	}
	log, _ := zap.NewProduction()
	return log
}
