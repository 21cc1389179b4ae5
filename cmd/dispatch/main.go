package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tuapuikia/dispatch/internal/app"
	"github.com/tuapuikia/dispatch/internal/config"
	"github.com/tuapuikia/dispatch/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults to $DISPATCH_CONFIG)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dispatch %s (%s, %s)\n", version.Version, version.GitCommit, version.BuildDate)
		return
	}

	path := *configPath
	if path == "" {
		path = os.Getenv("DISPATCH_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialize: %v\n", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown incomplete", "error", err)
			os.Exit(1)
		}

		slog.Info("shutdown complete")
	}
}
