package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/autolock"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/cachestore"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/config"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/content"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/database"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/identity"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/moderation"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/reputation"
	"github.com/MarcoPoloResearchLab/safeyak/backend/internal/server"
	"github.com/carlmjohnson/versioninfo"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
	envFile string
)

// Tables whose row changes are published to realtime subscribers.
var watchedTables = []string{"posts", "comments", "reputation", "votes", "bookmarks"}

func main() {
	rootCmd := &cobra.Command{
		Use:     "safeyak-api",
		Short:   "SafeYak anonymous campus feed backend",
		Version: versioninfo.Short(),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the environment is read")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "PostgreSQL DSN")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("moderation-api-key", "", "Toxicity model API key (overrides env)")
	cmd.PersistentFlags().String("redis-url", defaults.GetString("cache.redis_url"), "Redis URL for the reputation cache")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "moderation.api_key", "moderation-api-key")
	bindFlag(cmd, "cache.redis_url", "redis-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	notifier := realtime.NewNotifier(realtime.NotifierConfig{
		Publisher: hub,
		Tables:    watchedTables,
		Redact:    content.RedactChangeRow,
		Logger:    logger,
	})

	db, err := database.Open(database.Options{
		Driver:  appConfig.DatabaseDriver,
		Path:    appConfig.DatabasePath,
		DSN:     appConfig.DatabaseDSN,
		Plugins: []gorm.Plugin{notifier},
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	unconfigured, err := moderation.ParseUnconfiguredMode(appConfig.ModerationUnconfigured)
	if err != nil {
		return err
	}
	scorer := moderation.NewHuggingFaceScorer(moderation.HuggingFaceConfig{
		URL:      appConfig.ModerationAPIURL,
		APIKey:   appConfig.ModerationAPIKey,
		RetryMax: appConfig.ModerationRetryMax,
		Logger:   logger,
	})
	if appConfig.ModerationAPIKey == "" {
		logger.Warn("toxicity model api key not configured", zap.String("unconfigured_mode", string(unconfigured)))
	}
	classifier, err := moderation.NewClassifier(moderation.ClassifierConfig{
		Scorer: scorer,
		Policy: moderation.Policy{
			BlurThreshold: appConfig.BlurThreshold,
			HideThreshold: appConfig.HideThreshold,
			Unconfigured:  unconfigured,
		},
		Timeout: appConfig.ModerationTimeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	authors, err := identity.NewService(identity.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	ledger, err := reputation.NewLedger(reputation.LedgerConfig{
		Database: db,
		Deltas: reputation.Deltas{
			BlurPenalty: appConfig.BlurPenalty,
			HidePenalty: appConfig.HidePenalty,
			Upvote:      appConfig.UpvoteDelta,
			Bookmark:    appConfig.BookmarkDelta,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	cacheStore, err := cachestore.New(signalCtx, cachestore.Config{
		RedisURL: appConfig.CacheRedisURL,
		TTL:      appConfig.CacheTTL,
		Capacity: appConfig.CacheSize,
	})
	if err != nil {
		return err
	}
	reputationReader := reputation.NewCachedReader(ledger, cacheStore, logger)
	reputationUpdates, unsubscribe := hub.Subscribe(signalCtx, realtime.Filter{Table: "reputation", Event: realtime.EventAny})
	defer unsubscribe()
	go reputationReader.Follow(signalCtx, reputationUpdates)

	lockEngine, err := autolock.NewEngine(autolock.Config{
		Store: content.NewLockStore(db),
		Rule: autolock.Rule{
			ViolationThreshold: appConfig.ViolationThreshold,
			LockOnSevere:       appConfig.LockOnSevere,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	contentService, err := content.NewService(content.ServiceConfig{
		Database:   db,
		Classifier: classifier,
		Authors:    authors,
		Ledger:     ledger,
		LockEngine: lockEngine,
		Reputation: reputationReader,
		IDProvider: content.NewUUIDProvider(),
		Limits: content.Limits{
			Cooldown:      appConfig.Cooldown,
			MaxBodyLength: appConfig.MaxBodyLength,
			Zones:         appConfig.Zones,
		},
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		ContentService: contentService,
		Classifier:     classifier,
		Identity:       authors,
		Reputation:     reputationReader,
		Profiles:       ledger,
		Hub:            hub,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress), zap.String("version", versioninfo.Short()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
