package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bdtoconnect-creator/etf-compass/internal/app"
	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/server"
)

func main() {
	// Provider keys may live in a local .env; a missing file is fine
	_ = godotenv.Load()

	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	common.PrintBanner(a.Config, a.Logger)

	if err := a.StartScheduler(); err != nil {
		a.Logger.Error().Err(err).Msg("Scheduler failed to start")
		return
	}

	srv := server.NewServer(a)

	// POST /api/shutdown cancels the same context as SIGTERM
	shutdownChan := make(chan struct{}, 1)
	srv.SetShutdownChannel(shutdownChan)
	go func() {
		select {
		case <-shutdownChan:
			a.Logger.Info().Msg("Shutdown requested over HTTP")
			stop()
		case <-ctx.Done():
		}
	}()

	a.Logger.Info().
		Str("url", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)).
		Msg("Server ready")

	if err := srv.Run(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("HTTP server stopped with error")
	}

	common.PrintShutdownBanner(a.Logger)
	a.Logger.Info().Msg("Server stopped")
}
