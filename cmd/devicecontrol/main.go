// Device Control - command queueing and dispatch for connected devices.
//
// This is the main entry point for the device control service. It keeps
// live device state and per-device priority command queues in Redis,
// dispatches commands to simulated executors, and removes every trace of a
// device when the registry announces its deletion.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-device-control/internal/api"
	"github.com/nerrad567/gray-logic-device-control/internal/cleanup"
	"github.com/nerrad567/gray-logic-device-control/internal/command"
	"github.com/nerrad567/gray-logic-device-control/internal/control"
	"github.com/nerrad567/gray-logic-device-control/internal/devicestate"
	"github.com/nerrad567/gray-logic-device-control/internal/dispatch"
	"github.com/nerrad567/gray-logic-device-control/internal/events"
	"github.com/nerrad567/gray-logic-device-control/internal/history"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/kvstore"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-device-control/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-device-control/internal/registry"
	"github.com/nerrad567/gray-logic-device-control/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when DEVICECONTROL_CONFIG is unset.
	defaultConfigPath = "configs/config.yaml"

	// healthLogInterval is how often subsystem health is logged.
	healthLogInterval = time.Minute

	// startupTimeout bounds connecting to the store at startup.
	startupTimeout = 10 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, blocks until ctx is cancelled, and shuts the
// components down in reverse order.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear start-up sequence
	log := logging.Default()
	log.Info("starting device control",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Key-value store
	openCtx, cancelOpen := context.WithTimeout(ctx, startupTimeout)
	kv, err := kvstore.Open(openCtx, cfg.Redis)
	cancelOpen()
	if err != nil {
		return fmt.Errorf("opening key-value store: %w", err)
	}
	defer func() {
		log.Info("closing key-value store")
		if closeErr := kv.Close(); closeErr != nil {
			log.Error("error closing key-value store", "error", closeErr)
		}
	}()
	log.Info("key-value store connected", "backend", cfg.Redis.Backend, "addr", cfg.Redis.Addr)

	subsystems := map[string]api.HealthChecker{}
	var observers command.Observers

	// WebSocket hub, started before anything can finish a command.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)
	observers = append(observers, hub)

	// Command history (optional)
	var (
		db       *database.DB
		histRepo history.Repository
	)
	if cfg.Database.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("command history database ready", "path", cfg.Database.Path)

		repo := history.NewSQLiteRepository(db.DB)
		histRepo = repo
		recorder := history.NewRecorder(repo)
		recorder.SetLogger(log.Component("history"))
		observers = append(observers, recorder)
		subsystems["database"] = db

		pruner := history.NewPruner(repo, cfg.GetHistoryRetention(), 0)
		pruner.SetLogger(log.Component("history"))
		pruner.Start(ctx)
		defer pruner.Stop()
	} else {
		log.Info("command history disabled")
	}

	// InfluxDB telemetry (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		observers = append(observers, influxClient)
		subsystems["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT is needed for event consumption or command event publishing.
	var mqttClient *mqtt.Client
	if cfg.MQTTEnabled() {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		subsystems["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		if cfg.Dispatcher.PublishEvents {
			publisher := events.NewCommandPublisher(mqttClient)
			publisher.SetLogger(log.Component("events"))
			observers = append(observers, publisher)
			log.Info("command events publishing enabled")
		}
	}

	// Domain stores and services
	states := devicestate.NewStore(kv, cfg.GetStateTTL())
	states.SetLogger(log.Component("devicestate"))
	commands := command.NewStore(kv, command.Options{
		TTL:        cfg.GetCommandTTL(),
		PruneLimit: cfg.Dispatcher.PruneLimit,
	})
	commands.SetLogger(log.Component("command"))

	dispatcher, err := dispatch.New(dispatch.Deps{
		Commands:  commands,
		States:    states,
		Executors: dispatch.NewBuiltinRegistry(nil),
		Observer:  observers,
		Logger:    log.Component("dispatch"),
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	svc, err := control.New(control.Deps{
		States:     states,
		Commands:   commands,
		Dispatcher: dispatcher,
		Registry:   registry.NewClient(cfg.Registry.URL, cfg.GetRegistryTimeout()),
		Store:      kv,
		Observer:   observers,
		Logger:     log.Component("control"),
		MaxRetries: cfg.Dispatcher.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("creating control service: %w", err)
	}

	coordinator := cleanup.NewCoordinator(kv, commands)
	coordinator.SetLogger(log.Component("cleanup"))
	sweeper := cleanup.NewSweeper(coordinator, cfg.GetSweepInterval())
	sweeper.SetLogger(log.Component("cleanup"))
	sweeper.Start(ctx)
	defer func() {
		log.Info("stopping expired command sweep")
		sweeper.Stop()
	}()

	// Device lifecycle events
	stopEvents, err := startEventSource(ctx, cfg, mqttClient, coordinator, log, subsystems)
	if err != nil {
		return fmt.Errorf("starting event source: %w", err)
	}
	defer stopEvents()

	// HTTP API
	var dbStats api.DBStatser
	if db != nil {
		dbStats = db
	}
	srv, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log.Component("api"),
		Control:    svc,
		Cleanup:    coordinator,
		History:    histRepo,
		Hub:        hub,
		Subsystems: subsystems,
		DB:         dbStats,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	if cfg.Security.JWT.Secret == "" {
		log.Warn("API authentication disabled; set security.jwt.secret to require bearer tokens")
	}

	if err := healthCheck(ctx, svc, subsystems); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")
	log.Info("initialisation complete, waiting for shutdown signal")

	go logHealth(ctx, svc, subsystems, log)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// startEventSource starts the configured device lifecycle event source and
// returns its stop function.
func startEventSource(
	ctx context.Context,
	cfg *config.Config,
	mqttClient *mqtt.Client,
	coordinator *cleanup.Coordinator,
	log *logging.Logger,
	subsystems map[string]api.HealthChecker,
) (func(), error) {
	handler := events.NewHandler(coordinator)
	handler.SetLogger(log.Component("events"))

	switch cfg.Events.Transport {
	case config.TransportMQTT:
		src := events.NewMQTTSource(mqttClient, cfg.Events.MQTT.Topic, handler)
		if err := src.Start(ctx); err != nil {
			return nil, fmt.Errorf("subscribing to device events: %w", err)
		}
		log.Info("device events subscribed", "transport", "mqtt", "topic", cfg.Events.MQTT.Topic)
		return func() {
			log.Info("unsubscribing from device events")
			if err := src.Stop(); err != nil {
				log.Warn("error unsubscribing from device events", "error", err)
			}
		}, nil

	case config.TransportAMQP:
		src := events.NewAMQPSource(cfg.Events.AMQP, handler)
		if err := src.Start(ctx); err != nil {
			return nil, fmt.Errorf("consuming device events: %w", err)
		}
		subsystems["amqp"] = src
		log.Info("device events consumer started",
			"transport", "amqp",
			"exchange", cfg.Events.AMQP.Exchange,
			"queue", cfg.Events.AMQP.Queue,
		)
		return func() {
			log.Info("stopping device events consumer")
			if err := src.Stop(); err != nil {
				log.Warn("error stopping device events consumer", "error", err)
			}
		}, nil

	default:
		log.Info("device events disabled; cleanup is available over the API only")
		return func() {}, nil
	}
}

// getConfigPath returns the config path from DEVICECONTROL_CONFIG, or the default.
func getConfigPath() string {
	if path := os.Getenv("DEVICECONTROL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the store and every optional subsystem.
func healthCheck(ctx context.Context, svc *control.Service, subsystems map[string]api.HealthChecker) error {
	if h := svc.Health(ctx); !h.Healthy {
		return fmt.Errorf("key-value store: %w", h.Err)
	}
	for name, checker := range subsystems {
		if err := checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// logHealth logs subsystem health every healthLogInterval until ctx ends.
func logHealth(ctx context.Context, svc *control.Service, subsystems map[string]api.HealthChecker, log *logging.Logger) {
	ticker := time.NewTicker(healthLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := healthCheck(ctx, svc, subsystems); err != nil && ctx.Err() == nil {
				log.Warn("health check failed", "error", err)
			}
		}
	}
}
