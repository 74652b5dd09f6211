package kiosk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paka-eco/kiosk-controller/internal/audit"
	"github.com/paka-eco/kiosk-controller/internal/backend"
	"github.com/paka-eco/kiosk-controller/internal/config"
	"github.com/paka-eco/kiosk-controller/internal/logging"
	"github.com/paka-eco/kiosk-controller/internal/protocol"
	"github.com/paka-eco/kiosk-controller/internal/qr"
	"github.com/paka-eco/kiosk-controller/internal/qrinput"
	"github.com/paka-eco/kiosk-controller/internal/sequence"
	"github.com/paka-eco/kiosk-controller/internal/store"
	"github.com/paka-eco/kiosk-controller/internal/syncsvc"
	"github.com/paka-eco/kiosk-controller/internal/telemetry"
	_ "github.com/paka-eco/kiosk-controller/migrations" // embedded schema
)

const (
	// tickPeriod is the main loop's cadence.
	tickPeriod = 1 * time.Second

	dbBusyTimeout = 5 // seconds
)

// App is the assembled kiosk controller.
type App struct {
	cfg     *config.Config
	log     *logging.Logger
	version string

	db        *store.DB
	link      *protocol.Link
	engine    *sequence.Engine
	reader    *qrinput.Reader
	syncSvc   *syncsvc.Service
	telemetry *telemetry.Client
	audit     *audit.Logger
}

// New builds the controller from cfg, opening the store and the serial
// link. Any failure here is fatal: the caller exits non-zero.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger, version string) (*App, error) {
	db, err := store.Open(store.Config{
		Path:        cfg.Database.URL,
		WALMode:     true,
		BusyTimeout: dbBusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("kiosk: opening store: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // best effort on the failure path
		return nil, fmt.Errorf("kiosk: migrating store: %w", err)
	}

	containers := store.NewContainerRepository(db)
	status := store.NewDeviceStatusRepository(db)
	auditLogs := store.NewAuditLogRepository(db)
	auditLogger := audit.New(auditLogs, log.With("component", "audit"))

	var tel *telemetry.Client
	if cfg.InfluxDB.Enabled() {
		tel, err = telemetry.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			// Telemetry is optional; a sink that is down must not keep the
			// kiosk from serving returns.
			log.Warn("telemetry sink unavailable, continuing without it", "error", err)
			tel = nil
		}
	}

	port, err := protocol.Open(cfg.Serial.Port, cfg.Serial.BaudRate)
	if err != nil {
		auditLogger.LinkConnectFailed(ctx, cfg.Serial.Port, err)
		tel.Close() //nolint:errcheck // nil-safe
		db.Close()  //nolint:errcheck // best effort on the failure path
		return nil, fmt.Errorf("kiosk: opening serial link: %w", err)
	}
	link := protocol.NewLink(port, log.With("component", "link"))
	auditLogger.LinkConnected(ctx, cfg.Serial.Port)

	be := backend.New(backend.Config{
		BaseURL:         cfg.Backend.BaseURL,
		APIKey:          cfg.Backend.APIKey,
		RaspberryAPIKey: cfg.Backend.RaspberryAPIKey,
		DeviceName:      cfg.Device.Name,
		Timeout:         cfg.Backend.Timeout,
	}, log.With("component", "backend"))

	validator := qr.New(cfg.QR.PrivateKey, containers, be, auditLogger, log.With("component", "qr"))
	reader := qrinput.New(cfg.HID.DevicePath, auditLogger, log.With("component", "qrinput"))
	engine := sequence.New(link, validator, auditLogger, log.With("component", "sequence"), tel, reader.Scans())

	syncSvc := syncsvc.New(
		syncsvc.Config{
			Version:           version,
			HealthcheckPeriod: cfg.Backend.HealthcheckPeriod,
			SyncPeriod:        cfg.Backend.SyncPeriod,
		},
		be, containers, status, auditLogs,
		auditLogger, log.With("component", "syncsvc"), tel,
		engine.SetDeviceActive, engine.SetSecureMode,
	)

	app := &App{
		cfg:       cfg,
		log:       log,
		version:   version,
		db:        db,
		link:      link,
		engine:    engine,
		reader:    reader,
		syncSvc:   syncSvc,
		telemetry: tel,
		audit:     auditLogger,
	}
	app.restoreModeGates(ctx, status)
	return app, nil
}

// restoreModeGates re-applies the persisted mode gates so a kiosk that was
// inactive or in secure mode before a restart comes back up that way
// instead of serving returns until the first healthcheck.
func (a *App) restoreModeGates(ctx context.Context, status *store.DeviceStatusRepository) {
	s, err := status.Get(ctx)
	if err != nil {
		a.log.Error("could not restore persisted mode gates", "error", err)
		return
	}
	a.engine.SetDeviceActive(ctx, s.Active)
	a.engine.SetSecureMode(ctx, s.IsInSafeMode)
}

// Run drives the controller until ctx is cancelled, then shuts down
// cooperatively: reader stopped, lights off. Close releases the link
// afterwards.
func (a *App) Run(ctx context.Context) error {
	a.audit.Startup(ctx, a.version)

	// A failed handshake is not fatal: the MCU may still be booting, and
	// the engine resynchronizes through ordinary sensor traffic.
	if err := a.engine.Start(ctx); err != nil {
		a.log.Warn("mcu startup synchronization failed", "error", err)
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.reader.Run(groupCtx)
	})

	g.Go(func() error {
		return a.tickLoop(groupCtx)
	})

	err := g.Wait()

	// The engine's commands need a live context after cancellation.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.engine.LightsOffBestEffort(shutdownCtx)
	a.audit.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// tickLoop is the single-threaded cooperative scheduler: drain the link
// and dispatch via the engine, run the sync service cadences, sleep one
// second.
func (a *App) tickLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := a.engine.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.log.Error("engine tick failed", "error", err)
		}

		a.syncSvc.Tick(ctx)

		select {
		case <-time.After(tickPeriod):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases the link, the telemetry sink, and the store. Safe to call
// after Run returns.
func (a *App) Close() error {
	var errs []error
	if err := a.link.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing link: %w", err))
	}
	if err := a.telemetry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing telemetry: %w", err))
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}
