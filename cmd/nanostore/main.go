// Package main implements the nanostore command line tool. It opens a store
// file, runs one command against it and closes it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arkilian/nanostore/internal/config"
	"github.com/arkilian/nanostore/internal/logger"
	"github.com/arkilian/nanostore/internal/observability"
	"github.com/arkilian/nanostore/internal/store"
)

var (
	version = "dev"
	commit  = "unknown"
)

// command runs one subcommand against an open store.
type command struct {
	usage string
	run   func(ctx context.Context, env *environment, args []string) error
}

// environment is what every command gets.
type environment struct {
	cfg    *config.Config
	store  *store.Store
	logger *zap.Logger
}

// commands is filled in init: the handlers refer back to it for usage text.
var commands map[string]command

func init() {
	commands = map[string]command{
		"put":       {"put [-class NAME] [-key KEY] [FILE|-]", runPut},
		"get":       {"get KEY...", runGet},
		"search":    {"search [-attr PATH] [-value V] [-match TYPE] [-class NAME] [-sort PATH[:desc]] [-return A,B] [-limit N] [-offset N] [-keys]", runSearch},
		"remove":    {"remove [-all] KEY...", runRemove},
		"aggregate": {"aggregate -fn avg|count|max|min|total [-over PATH] [search flags]", runAggregate},
		"sql":       {"sql [-objects|-keys] [-explain] STATEMENT", runSQL},
		"classes":   {"classes", runClasses},
		"bags":      {"bags [-name NAME] [-containing KEY]", runBags},
		"compact":   {"compact", runCompact},
		"integrity": {"integrity", runIntegrity},
		"indexes":   {"indexes [list|create PATH|drop PATH|clear|rebuild]", runIndexes},
		"backup":    {"backup [-name NAME]", runBackup},
		"backups":   {"backups", runBackups},
		"restore":   {"restore OBJECT DEST", runRestore},
	}
}

func main() {
	var (
		configFile  string
		envFile     string
		dataDir     string
		storePath   string
		storeType   string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env-file", "", "Load environment variables from this file (default .env if present)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for store and backup files")
	flag.StringVar(&storePath, "store", "", "Database file (implies -type persistent)")
	flag.StringVar(&storeType, "type", "", "Store type: memory, temporary, persistent")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "nanostore - schema-less document store on SQLite\n\n")
		fmt.Fprintf(os.Stderr, "Usage: nanostore [options] COMMAND [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		for _, name := range sortedCommands() {
			fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
		}
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  NANOSTORE_STORE_TYPE    Store type (memory, temporary, persistent)\n")
		fmt.Fprintf(os.Stderr, "  NANOSTORE_STORE_PATH    Database file\n")
		fmt.Fprintf(os.Stderr, "  NANOSTORE_BACKUP_TYPE   Backup destination (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  NANOSTORE_LOG_LEVEL     Log level (debug, info, warn, error)\n")
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("nanostore version %s (commit: %s)\n", version, commit)
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}

	if err := loadEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load environment file: %v\n", err)
		os.Exit(1)
	}
	cfg, err := loadConfig(configFile, dataDir, storeType, storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cfg, log, cmd, flag.Args()[1:]); err != nil {
		log.Error("command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		fmt.Fprintf(os.Stderr, "nanostore %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, cmd command, args []string) (err error) {
	opts := []store.Option{store.WithLogger(log)}
	if cfg.Metrics.Enabled {
		m := observability.NewMetrics(cfg.Metrics.Namespace)
		if err := m.Register(prometheus.DefaultRegisterer); err != nil {
			return err
		}
		opts = append(opts, store.WithMetrics(m))
		defer logMetrics(log, cfg.Metrics.Namespace)
	}

	s, err := store.Open(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	return cmd.run(ctx, &environment{cfg: cfg, store: s, logger: log}, args)
}

// loadEnv loads path, or .env when path is empty and the file exists.
func loadEnv(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, storeType, storePath string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Flags have the highest priority
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if storePath != "" {
		cfg.Store.Type = config.StoreTypePersistent
		cfg.Store.Path = storePath
	}
	if storeType != "" {
		cfg.Store.Type = config.StoreType(storeType)
	}
	cfg.Resolve()
	return cfg, nil
}

// logMetrics logs the value of every store counter and gauge in the default
// registry.
func logMetrics(log *zap.Logger, namespace string) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		log.Warn("failed to gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				log.Info("metric", zap.String("name", mf.GetName()), zap.Float64("value", m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				log.Info("metric", zap.String("name", mf.GetName()), zap.Float64("value", m.GetGauge().GetValue()))
			}
		}
	}
}
