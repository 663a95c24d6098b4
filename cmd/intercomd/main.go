// Command intercomd serves intercom access control: PIN and access code
// management for building staff and tenants, and door-side verification
// for intercom panels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/intercom-access/migrations"

	"github.com/nerrad567/intercom-access/internal/access"
	"github.com/nerrad567/intercom-access/internal/api"
	"github.com/nerrad567/intercom-access/internal/auth"
	"github.com/nerrad567/intercom-access/internal/credential"
	"github.com/nerrad567/intercom-access/internal/directory"
	"github.com/nerrad567/intercom-access/internal/infrastructure/config"
	"github.com/nerrad567/intercom-access/internal/infrastructure/database"
	"github.com/nerrad567/intercom-access/internal/infrastructure/influxdb"
	"github.com/nerrad567/intercom-access/internal/infrastructure/logging"
	"github.com/nerrad567/intercom-access/internal/infrastructure/mqtt"
)

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// devTokenTTL is the lifetime of tokens printed by -dev-token.
const devTokenTTL = 24 * time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	seedPath string
	devToken string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("intercomd", flag.ContinueOnError)
	fs.StringVar(&opts.seedPath, "seed", "", "apply a directory seed file after migrating")
	fs.StringVar(&opts.devToken, "dev-token", "", "print a signed token for `userID:role` and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// run is the application, separated from main for testing.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	log := logging.Default()

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if opts.devToken != "" {
		return printDevToken(stdout, opts.devToken, cfg.Security.JWT)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting intercom access",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	db, err := database.Open(ctx, database.Config{
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

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	if opts.seedPath != "" {
		seed, err := directory.LoadSeedFile(opts.seedPath)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, db); err != nil {
			return fmt.Errorf("applying seed: %w", err)
		}
		log.Info("directory seed applied", "path", opts.seedPath)
	}

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	sinks := []access.EventSink{access.NewHubSink(hub)}

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT, log.With("component", "mqtt"))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		sinks = append(sinks, access.NewMQTTSink(mqttClient, mqttClient.Topics(), byte(cfg.MQTT.QoS)))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic_prefix", cfg.MQTT.TopicPrefix,
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		sinks = append(sinks, access.NewMetricsSink(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	svc := access.NewService(access.Deps{
		DB:     db,
		Hasher: credential.NewHasher(cfg.Security.HashCost),
		Config: cfg.Access,
		Sinks:  sinks,
		Logger: log.With("component", "access"),
	})

	srv, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.With("component", "api"),
		Access:   svc,
		DB:       db,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if err := srv.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	g.Go(func() error {
		<-gctx.Done()
		return srv.Close()
	})

	log.Info("intercom access running", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("intercom access stopped")
	return nil
}

// getConfigPath uses INTERCOM_CONFIG when set.
func getConfigPath() string {
	if path := os.Getenv("INTERCOM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// printDevToken writes a token for arg, formatted userID:role.
func printDevToken(w io.Writer, arg string, jwtCfg config.JWTConfig) error {
	idPart, rolePart, ok := strings.Cut(arg, ":")
	if !ok {
		return errors.New("dev-token must be userID:role")
	}
	userID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || userID <= 0 {
		return fmt.Errorf("dev-token user id %q is not a positive integer", idPart)
	}
	role, err := auth.ParseRole(rolePart)
	if err != nil {
		return fmt.Errorf("dev-token role %q: %w", rolePart, err)
	}

	token, err := auth.SignToken(auth.Principal{UserID: userID, Role: role}, jwtCfg.Secret, jwtCfg.Issuer, devTokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
