package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/access"
	"github.com/MarcoPoloResearchLab/unfold/internal/auth"
	"github.com/MarcoPoloResearchLab/unfold/internal/config"
	"github.com/MarcoPoloResearchLab/unfold/internal/database"
	"github.com/MarcoPoloResearchLab/unfold/internal/events"
	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/MarcoPoloResearchLab/unfold/internal/identity"
	"github.com/MarcoPoloResearchLab/unfold/internal/ids"
	"github.com/MarcoPoloResearchLab/unfold/internal/logging"
	"github.com/MarcoPoloResearchLab/unfold/internal/runs"
	"github.com/MarcoPoloResearchLab/unfold/internal/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "unfold-api",
		Short: "Unfold exhibition backend service",
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
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Curator JWT signing secret (overrides env)")
	cmd.PersistentFlags().String("issuer", defaults.GetString("auth.issuer"), "Expected curator JWT issuer")
	cmd.PersistentFlags().Int("session-ttl-days", defaults.GetInt("session.ttl_days"), "Viewer session lifetime in days")
	cmd.PersistentFlags().String("events-driver", defaults.GetString("events.driver"), "Publish events via none, redis or amqp")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.issuer", "issuer")
	bindFlag(cmd, "session.ttl_days", "session-ttl-days")
	bindFlag(cmd, "events.driver", "events-driver")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
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

func newPublisher(ctx context.Context, appConfig config.AppConfig) (events.Publisher, error) {
	switch appConfig.EventsDriver {
	case config.EventsDriverRedis:
		return events.NewRedisPublisher(ctx, &redis.Options{
			Addr:     appConfig.EventsRedisAddr,
			Password: appConfig.EventsRedisPass,
			DB:       appConfig.EventsRedisDB,
		}, appConfig.EventsChannel)
	case config.EventsDriverAMQP:
		return events.NewAMQPPublisher(appConfig.EventsAMQPURL, appConfig.EventsChannel)
	default:
		return events.NewNopPublisher(), nil
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	publisher, err := newPublisher(ctx, appConfig)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			logger.Warn("event publisher close failed", zap.Error(closeErr))
		}
	}()

	idProvider := ids.NewUUIDProvider()

	curatorValidator, err := auth.NewCuratorValidator(auth.CuratorValidatorConfig{
		SigningSecret: []byte(appConfig.CuratorSigningKey),
		Issuer:        appConfig.CuratorIssuer,
	})
	if err != nil {
		return err
	}

	resolver, err := identity.NewResolver(identity.ResolverConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		SessionTTL: appConfig.SessionTTL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	exhibitionService, err := exhibitions.NewService(exhibitions.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Sanitizer:  exhibitions.NewHTMLSanitizer(),
		Publisher:  publisher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	grantStore, err := access.NewGrantStore(access.GrantStoreConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	repository := exhibitions.NewRepository(db)
	accessEngine, err := access.NewEngine(access.EngineConfig{
		Exhibitions: repository,
		Scopes:      resolver,
		Grants:      grantStore,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	runService, err := runs.NewService(runs.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Access:     accessEngine,
		Tags:       resolver,
		Sessions:   resolver,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		CuratorValidator: curatorValidator,
		Sessions:         resolver,
		Runs:             runService,
		Curation:         exhibitionService,
		Gallery:          repository,
		Access:           accessEngine,
		Grants:           grantStore,
		InternalAPIKey:   appConfig.InternalAPIKey,
		AllowedOrigins:   appConfig.AllowedOrigins,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("events_driver", appConfig.EventsDriver))
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
