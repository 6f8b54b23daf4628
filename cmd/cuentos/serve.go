package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	cfgpkg "cuentos/internal/config"
	"cuentos/internal/metrics"
	"cuentos/internal/narrator"
	"cuentos/internal/server"
)

// cuentos serve
func cmdServe(args []string) error {
	var cf commonFlags
	var addr stringFlag
	var maxConcurrent intFlag
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	addCommonFlags(fs, &cf)
	fs.Var(&addr, "addr", "Listen address (default :8080)")
	fs.Var(&maxConcurrent, "max-concurrent", "Stories generated at once")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	var flagOv cfgpkg.Overrides
	if addr.set {
		flagOv.Addr = &addr.v
	}
	if maxConcurrent.set {
		flagOv.MaxConcurrent = &maxConcurrent.v
	}
	cfg, err := loadConfig(&cf, flagOv)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)
	if err := cfgpkg.ValidateForServe(cfg); err != nil {
		return err
	}

	m := metrics.New()
	n, err := newNarrator(cfg, narrator.WithObserver(m), narrator.WithLogger(logger))
	if err != nil {
		return err
	}
	srv := server.New(n, server.Options{
		Logger:  logger,
		Metrics: m.Handler(),
		Version: version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("serve start",
		"textProvider", cfg.TextProvider,
		"textModel", cfg.TextModel,
		"voice", cfg.Voice,
		"ttsModel", cfg.TTSModel,
		"maxConcurrent", cfg.MaxConcurrent,
	)
	return srv.Run(ctx, cfg.Addr)
}
