// The kiosk controller for the paka container-return machine.
//
// It mediates between the bay microcontroller (serial), the USB QR
// scanner, the local SQLite store, and the remote backend, running the
// SEQ1-SEQ5 return flow until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/paka-eco/kiosk-controller/internal/config"
	"github.com/paka-eco/kiosk-controller/internal/kiosk"
	"github.com/paka-eco/kiosk-controller/internal/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application body, separated from main so exit codes stay in
// one place and the flow is testable.
func run(ctx context.Context, args []string, stdout *os.File) error {
	flags := flag.NewFlagSet("kiosk", flag.ContinueOnError)
	debug := flags.Bool("debug", false, "elevate log level to debug")
	checkConfig := flags.Bool("check-config", false, "dump sanitized configuration and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if *debug {
		cfg.Debug = true
		cfg.Logging.Level = "debug"
	}

	if *checkConfig {
		out, err := yaml.Marshal(cfg.Sanitized())
		if err != nil {
			return fmt.Errorf("rendering configuration: %w", err)
		}
		fmt.Fprintf(stdout, "kiosk-controller %s (%s)\n%s", version, commit, out)
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(cfg.Logging, version)
	log.Info("kiosk controller starting", "version", version, "commit", commit, "device", cfg.Device.Name)

	app, err := kiosk.New(ctx, cfg, log, version)
	if err != nil {
		log.Error("initialization failed", "error", err)
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			log.Error("shutdown cleanup failed", "error", cerr)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Error("controller exited with error", "error", err)
		return err
	}

	log.Info("kiosk controller stopped")
	return nil
}
