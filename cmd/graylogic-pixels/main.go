// Gray Logic Pixels - LED output core
//
// This is the main entry point for the Gray Logic Pixels service. It loads
// the configured LED output devices, drives each one at its refresh rate and
// relays frames and shutdown commands over MQTT.
//
// Startup order: config, logging, database, MQTT, InfluxDB, event bus,
// device registry, relay, telemetry, HTTP API. Shutdown blanks every device
// before the connections close.
//
// "graylogic-pixels token" mints an API bearer token and exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-pixels/internal/outputs/dummy"
	_ "github.com/nerrad567/gray-logic-pixels/internal/outputs/mqttpixels"
	_ "github.com/nerrad567/gray-logic-pixels/migrations"

	"github.com/nerrad567/gray-logic-pixels/internal/api"
	"github.com/nerrad567/gray-logic-pixels/internal/audit"
	"github.com/nerrad567/gray-logic-pixels/internal/device"
	"github.com/nerrad567/gray-logic-pixels/internal/events"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-pixels/internal/relay"
	"github.com/nerrad567/gray-logic-pixels/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownReasonExit is the reason carried by the shutdown event on process exit.
const shutdownReasonExit = "process exit"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Pixels",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database (optional)
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database ready", "path", cfg.Database.Path)
	} else {
		log.Info("database disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	bus := events.NewBus(cfg.Events.QueueSize)
	bus.SetLogger(log.Component("events"))

	// Audit trail (needs the database)
	var auditRepo audit.Repository
	if db != nil {
		auditRepo = audit.NewSQLiteRepository(db.DB)
	}

	registry, err := startRegistry(ctx, cfg, db, auditRepo, mqttClient, bus, log)
	if err != nil {
		bus.Close()
		return err
	}
	svc := &services{bus: bus, registry: registry}

	var frameRelay *relay.Relay
	if mqttClient != nil {
		frameRelay = relay.New(bus, mqttClient)
		frameRelay.SetLogger(log.Component("relay"))
		if startErr := frameRelay.Start(); startErr != nil {
			log.Warn("MQTT relay failed to start, frames will not be mirrored", "error", startErr)
			frameRelay = nil
		}
	}
	svc.relay = frameRelay

	var reporter *telemetry.Reporter
	if influxClient != nil {
		reporter = telemetry.NewReporter(telemetry.ReporterConfig{
			Interval: cfg.GetTelemetryInterval(),
			Devices:  registry,
			Writer:   influxClient,
			Bus:      bus,
		})
		reporter.SetLogger(log.Component("telemetry"))
		reporter.Start(ctx)
		svc.reporter = reporter
	}

	if cfg.API.Enabled {
		apiServer, apiErr := startAPI(ctx, cfg, registry, bus, auditRepo, log)
		if apiErr != nil {
			shutdown(cfg, svc, log)
			return apiErr
		}
		svc.api = apiServer
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		shutdown(cfg, svc, log)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// A shutdown event from elsewhere (the MQTT command) also ends the process.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	if unsub, subErr := bus.Subscribe(events.TypeShutdown, func(events.Event) { stop() }); subErr == nil {
		defer unsub()
	}

	log.Info("initialisation complete, waiting for shutdown signal", "devices", registry.Count())

	<-runCtx.Done()
	log.Info("shutdown signal received, cleaning up")

	shutdown(cfg, svc, log)

	// Deferred Close() calls then run in reverse order:
	// 1. InfluxDB (if enabled)
	// 2. MQTT (if enabled)
	// 3. Database (if enabled)
	log.Info("Gray Logic Pixels stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens the SQLite database and applies migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing; the migration error is the one to report
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// startRegistry builds the device registry and loads devices from the config
// file and, when persistence is on, from the database.
func startRegistry(ctx context.Context, cfg *config.Config, db *database.DB, auditRepo audit.Repository, mqttClient *mqtt.Client, bus *events.Bus, log *logging.Logger) (*device.Registry, error) {
	opts := device.RegistryOptions{
		Events:      bus,
		Logger:      log.Component("device"),
		MissedTicks: device.MissedTickPolicy(cfg.Output.MissedTicks),
	}
	// Leave the interfaces nil rather than holding typed nil pointers.
	if mqttClient != nil {
		opts.Env.MQTT = mqttClient
	}
	if auditRepo != nil {
		opts.Audit = audit.NewRecorder(auditRepo, "registry", log.Component("audit"))
	}
	if db != nil && cfg.Output.PersistDevices {
		opts.Repository = device.NewSQLiteRepository(db.DB)
	}

	registry, err := device.NewRegistry(opts)
	if err != nil {
		return nil, fmt.Errorf("creating device registry: %w", err)
	}

	registry.LoadFromConfig(ctx, deviceEntries(cfg.Devices))

	if _, err := registry.LoadFromRepository(ctx); err != nil {
		log.Warn("stored devices not loaded", "error", err)
	}

	log.Info("device registry initialised",
		"devices", registry.Count(),
		"types", device.DefaultTypes.Names(),
	)
	return registry, nil
}

// deviceEntries converts config file entries to registry entries.
func deviceEntries(in []config.DeviceEntry) []device.Entry {
	out := make([]device.Entry, 0, len(in))
	for _, e := range in {
		out = append(out, device.Entry{ID: e.ID, Type: e.Type, Config: e.Config})
	}
	return out
}

// startAPI starts the HTTP API and WebSocket frame stream.
func startAPI(ctx context.Context, cfg *config.Config, registry *device.Registry, bus *events.Bus, auditRepo audit.Repository, log *logging.Logger) (*api.Server, error) {
	srv, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log.Component("api"),
		Registry: registry,
		Events:   bus,
		Audit:    auditRepo,
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	if cfg.API.Auth.JWTSecret == "" {
		log.Warn("API authentication disabled, set api.auth.jwt_secret to require tokens")
	}
	return srv, nil
}

// services are the running components shutdown stops. Nil fields were never
// started.
type services struct {
	bus      *events.Bus
	registry *device.Registry
	relay    *relay.Relay
	reporter *telemetry.Reporter
	api      *api.Server
}

// shutdown blanks every device and stops the components that feed on the
// event bus. It waits at most output.shutdown_timeout for the blanking.
func shutdown(cfg *config.Config, svc *services, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()

	if err := svc.bus.PublishWait(ctx, events.Shutdown{Reason: shutdownReasonExit}); err != nil {
		if !errors.Is(err, events.ErrBusClosed) {
			log.Warn("devices not blanked before timeout", "error", err)
		}
		svc.registry.ClearAllEffects()
	}

	if err := svc.registry.Close(); err != nil {
		log.Error("error closing devices", "error", err)
	}

	if svc.reporter != nil {
		svc.reporter.Stop()
	}

	// Closing the bus drains queued zero frames to the relay and the
	// WebSocket clients.
	svc.bus.Close()

	if svc.relay != nil {
		svc.relay.Stop()
	}

	if svc.api != nil {
		if err := svc.api.Close(); err != nil {
			log.Error("error closing API server", "error", err)
		}
	}

	st := svc.bus.Stats()
	log.Info("event bus closed",
		"published", st.Published,
		"delivered", st.Delivered,
		"dropped", st.Dropped,
	)
}

// healthCheck verifies all enabled infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
