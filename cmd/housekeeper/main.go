// Registry Housekeeper
//
// This is the main entry point for the housekeeper service. It connects
// to a configuration registry (Home Assistant), audits the organisation
// of areas, devices and entities, and exposes plan/apply/rollback
// operations over a small HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-housekeeper/migrations"

	"github.com/nerrad567/gray-logic-housekeeper/internal/api"
	"github.com/nerrad567/gray-logic-housekeeper/internal/history"
	"github.com/nerrad567/gray-logic-housekeeper/internal/housekeeper"
	"github.com/nerrad567/gray-logic-housekeeper/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-housekeeper/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-housekeeper/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-housekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-housekeeper/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-housekeeper/internal/registry"
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

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting registry housekeeper",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open run-history database
	db, err := database.Open(database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	runRepo := history.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker (optional)
	var notifier housekeeper.Notifier
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
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
		notifier = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var metrics housekeeper.MetricsSink
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		metrics = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Registry client connects lazily on first use.
	regClient := registry.New(cfg.Registry, log)
	defer func() {
		if closeErr := regClient.Close(); closeErr != nil {
			log.Error("error closing registry connection", "error", closeErr)
		}
	}()

	store, err := housekeeper.NewStore(cfg.Housekeeper.DataDir)
	if err != nil {
		return fmt.Errorf("opening data dir: %w", err)
	}

	engine, err := housekeeper.New(housekeeper.Deps{
		Client:           regClient,
		Store:            store,
		Logger:           log,
		Recorder:         runRepo,
		Notifier:         notifier,
		Metrics:          metrics,
		RulesPath:        cfg.Housekeeper.RulesPath,
		FallbackAreaName: cfg.Housekeeper.FallbackAreaName,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	log.Info("engine initialised", "data_dir", cfg.Housekeeper.DataDir)

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Engine:  engine,
		History: runRepo,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOUSEKEEPER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOUSEKEEPER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
