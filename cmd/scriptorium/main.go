package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/interfaces"
	configsvc "github.com/scriptorium-dev/scriptorium/internal/services/config"
	"github.com/scriptorium-dev/scriptorium/internal/services/migrate"
	"github.com/scriptorium-dev/scriptorium/internal/services/retention"
	badgerstore "github.com/scriptorium-dev/scriptorium/internal/storage/badger"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles    configPaths
	configDir      = flag.String("config-dir", "", "Configuration hierarchy directory (base.yaml, <env>.yaml, sites.d/)")
	showVersion    = flag.Bool("version", false, "Print version information")
	showVersionV   = flag.Bool("v", false, "Print version information (shorthand)")
	runMaintenance = flag.Bool("maintenance", false, "Run retention maintenance and exit")
	runMigrate     = flag.Bool("migrate", false, "Apply pending schema migrations and exit")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Scriptorium version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup order: config, logger, banner, storage.
	var err error
	switch {
	case *configDir != "":
		config, err = common.LoadHierarchy(*configDir)
	case len(configFiles) > 0:
		config, err = common.LoadFromFiles(configFiles...)
	default:
		if _, statErr := os.Stat("config"); statErr == nil {
			config, err = common.LoadHierarchy("config")
		} else {
			config = common.NewDefaultConfig()
			err = config.Validate()
		}
	}
	if err != nil {
		tempLogger := common.GetLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	mgr, err := badgerstore.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
		os.Exit(1)
	}
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *runMigrate {
		migrator := migrate.NewMigrator(mgr, logger)
		applied, err := migrator.Apply(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Migration run failed")
			os.Exit(1)
		}
		logger.Info().Int("applied", applied).Msg("Migration run complete")
		return
	}

	if *runMaintenance {
		if err := runRetentionMaintenance(ctx, mgr); err != nil {
			logger.Error().Err(err).Msg("Retention maintenance failed")
			os.Exit(1)
		}
		return
	}

	// Default mode: hold the live configuration with hot reload and serve
	// until interrupted. Crawl workers and notifiers attach through the
	// storage manager.
	svc, err := configsvc.NewService(config, *configDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize config service")
		os.Exit(1)
	}
	if config.HotReload && *configDir != "" {
		if err := svc.StartWatching(ctx); err != nil {
			logger.Warn().Err(err).Msg("Configuration hot reload unavailable")
		} else {
			defer svc.StopWatching()
		}
	}

	logger.Info().
		Str("environment", config.Environment).
		Str("breaker", mgr.BreakerState()).
		Msg("Scriptorium storage core ready")

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
}

func runRetentionMaintenance(ctx context.Context, mgr *badgerstore.Manager) error {
	var sink interfaces.ArchiveSink
	var err error
	switch config.Retention.Archive.Backend {
	case "s3":
		sink, err = retention.NewS3Sink(ctx, config.Retention.Archive.S3, logger)
	case "filesystem":
		sink, err = retention.NewFilesystemSink(config.Retention.Archive.Directory, logger)
	}
	if err != nil {
		return err
	}

	svc := retention.NewService(mgr.RetentionStorage(), sink, config.Retention, logger)
	return svc.RunMaintenance(ctx)
}
