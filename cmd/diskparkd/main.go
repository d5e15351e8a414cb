package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"diskpark/internal/config"
	"diskpark/internal/daemon"
	"diskpark/internal/directive"
	"diskpark/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(cfg, logger)
	switch {
	case errors.Is(err, daemon.ErrNothingMonitored):
		fmt.Fprintf(os.Stderr, "%v, nothing to do.\n\n%s\n", err, directive.Grammar)
		os.Exit(0)
	case err != nil:
		logger.Error("daemon setup failed", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon failed", logging.Error(err))
		os.Exit(1)
	}
}

// buildLogger writes to stderr and, when log_dir is set, to a daemon log
// file as well.
func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	var w io.Writer = os.Stderr
	if cfg.LogDir != "" {
		f, err := logging.OpenLogFile(cfg.LogDir, "diskparkd.log")
		if err != nil {
			return nil, err
		}
		w = io.MultiWriter(os.Stderr, f)
	}
	return logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Writer: w,
	})
}
