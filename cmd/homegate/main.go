// homegate - home automation gateway
//
// homegate sits between a web front-end and the switches, bulbs and camera
// of a single home. It loads the device catalog, keeps the MQTT broker
// link, turns fire-and-forget MQTT into request/reply, runs weekly
// schedules and countdown timers, and pushes live state to browsers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	// Embedded zone database so site.timezone resolves on minimal images.
	_ "time/tzdata"

	"github.com/nerrad567/homegate/internal/api"
	"github.com/nerrad567/homegate/internal/audit"
	"github.com/nerrad567/homegate/internal/camera"
	"github.com/nerrad567/homegate/internal/correlation"
	"github.com/nerrad567/homegate/internal/crono"
	"github.com/nerrad567/homegate/internal/device"
	"github.com/nerrad567/homegate/internal/infrastructure/config"
	"github.com/nerrad567/homegate/internal/infrastructure/database"
	"github.com/nerrad567/homegate/internal/infrastructure/influxdb"
	"github.com/nerrad567/homegate/internal/infrastructure/logging"
	"github.com/nerrad567/homegate/internal/infrastructure/metrics"
	"github.com/nerrad567/homegate/internal/infrastructure/mqtt"
	"github.com/nerrad567/homegate/internal/schedule"
	"github.com/nerrad567/homegate/internal/session"
	"github.com/nerrad567/homegate/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// startupCheckTimeout bounds the initial infrastructure health probe.
const startupCheckTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, blocks until ctx is cancelled and tears the
// graph down in reverse order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting homegate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Sync() //nolint:errcheck // Best-effort flush on exit
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.ID,
		"timezone", cfg.Site.Timezone,
	)

	// Persistence
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	recorder := metrics.New()

	// Device catalog
	registry := device.NewRegistry()
	registry.SetLogger(log)
	registry.SetMetrics(recorder)

	loader := device.NewCatalogLoader(cfg.Catalog)
	loader.SetLogger(log)
	loader.SetMetrics(recorder)
	if err := loader.LoadWithRetry(ctx, registry); err != nil {
		return fmt.Errorf("loading device catalog: %w", err)
	}
	log.Info("device catalog loaded", "devices", registry.Count(), "url", cfg.Catalog.URL)

	hub := api.NewHub(cfg.WebSocket, log)

	// Broker link
	mqttClient, err := mqtt.Connect(cfg.MQTT, log)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	// Telemetry (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		// Telemetry failures never block startup.
		log.Warn("InfluxDB unavailable, telemetry disabled", "url", cfg.InfluxDB.URL, "error", err)
		influxClient = nil
	default:
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	engine := correlation.New(correlation.Config{
		Transport:   mqttClient,
		Registry:    registry,
		Broadcaster: hub,
		QoS:         mqttClient.QoS(),
		Logger:      log,
		Metrics:     recorder,
		Sink:        influxClient,
	})
	startEngine := func() {
		if err := engine.Start(ctx); err != nil {
			log.Error("device subscriptions incomplete", "error", err)
		}
	}
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected, subscribing device topics")
		startEngine()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	if mqttClient.IsConnected() {
		startEngine()
	}

	// Automation
	schedules := schedule.NewSQLiteRepository(db.DB)
	evaluator := schedule.NewEvaluator(schedule.Config{
		Repository:     schedules,
		Registry:       registry,
		Switcher:       engine,
		Location:       cfg.Location(),
		Interval:       cfg.SchedulerInterval(),
		OverrideWindow: cfg.OverrideWindow(),
		Logger:         log,
		Metrics:        recorder,
	})

	cronos := crono.NewManager(crono.Config{
		Repository:  crono.NewSQLiteRepository(db.DB),
		Registry:    registry,
		Schedules:   evaluator,
		Switcher:    engine,
		Broadcaster: hub,
		Interval:    cfg.CronoInterval(),
		Logger:      log,
		Metrics:     recorder,
	})
	if err := cronos.Load(ctx); err != nil {
		return fmt.Errorf("restoring cronos: %w", err)
	}
	log.Info("cronos restored", "active", cronos.Count())

	// Interactive clients
	sessions := session.NewManager(cfg.Session.PrivilegedRoles)
	sessions.SetLogger(log)
	sessions.SetMetrics(recorder)

	var relay *camera.Relay
	if cfg.Camera.Enabled {
		relay = camera.NewRelay(camera.Config{
			Publisher:      engine,
			Broadcaster:    hub,
			TriggerTopic:   cfg.Camera.TriggerTopic,
			TriggerPayload: cfg.Camera.TriggerPayload,
			Logger:         log,
		})
	}

	var trail *audit.Trail
	if cfg.Audit.Enabled {
		trail = audit.NewTrail(audit.TrailConfig{
			Repository: audit.NewSQLiteRepository(db.DB),
			Retention:  cfg.AuditRetention(),
			Logger:     log,
		})
	}

	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	logStartupHealth(ctx, log, checks)

	deps := api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Session:       cfg.Session,
		Camera:        cfg.Camera,
		Metrics:       cfg.Metrics,
		Security:      cfg.Security,
		Logger:        log,
		Registry:      registry,
		Commands:      engine,
		Overrides:     evaluator,
		Schedules:     schedules,
		Cronos:        cronos,
		Sessions:      sessions,
		CameraRelay:   relay,
		Hub:           hub,
		DB:            db,
		HealthChecks:  checks,
		Recorder:      recorder,
		MetricsHandle: recorder.Handler(),
		CmdTimeout:    cfg.CommandTimeout(),
		Version:       version,
	}
	if trail != nil {
		deps.Audit = trail
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Loops outlive the signal context: they stop only after the API
	// server has drained, and before the stores they write to close.
	loops := []func(context.Context){evaluator.Run, cronos.Run}
	if trail != nil {
		loops = append(loops, trail.Run)
	}
	defer startLoops(loops...)()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API server, background loops,
	// InfluxDB, MQTT, database.
	return nil
}

// startLoops runs each loop on a context detached from process signals.
// The returned stop cancels them and waits for every loop to return.
func startLoops(loops ...func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, loop := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}
	return func() {
		cancel()
		wg.Wait()
	}
}

// getConfigPath returns the configuration file path.
// Uses HOMEGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMEGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// logStartupHealth probes every dependency once. Failures are logged, not
// fatal: the broker may come up after us and /health reports the rest.
func logStartupHealth(ctx context.Context, log *logging.Logger, checks map[string]api.HealthChecker) {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			log.Warn("dependency not healthy at startup", "component", name, "error", err)
			continue
		}
		log.Debug("dependency healthy", "component", name)
	}
}
