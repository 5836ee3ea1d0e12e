package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/config"
	"github.com/MarcoPoloResearchLab/assistant/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "assistant-api",
		Short: "Productivity assistant backend: XP progression, reminders, notes and habits",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "tick",
		Short: "Run a single reminder scheduler pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTick(cmd.Context())
		},
	})

	var tokenUserID int64
	issueCmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Print a bearer token for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssueToken(cmd, tokenUserID)
		},
	}
	issueCmd.Flags().Int64Var(&tokenUserID, "user-id", 0, "User id the token is issued for")
	_ = issueCmd.MarkFlagRequired("user-id")
	rootCmd.AddCommand(issueCmd)

	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Bearer token signing secret (overrides env)")
	cmd.PersistentFlags().String("timezone", defaults.GetString("clock.timezone"), "IANA timezone that defines the XP day")
	cmd.PersistentFlags().String("admin-ids", defaults.GetString("admin.user_ids"), "Comma-separated admin user ids")
	cmd.PersistentFlags().Duration("tick-interval", defaults.GetDuration("reminders.tick_interval"), "Reminder scan interval")
	cmd.PersistentFlags().String("notifier", defaults.GetString("notifier.kind"), "Notifier kind (log, redis, webhook, realtime)")
	cmd.PersistentFlags().String("webhook-url", "", "Webhook notifier target URL")
	cmd.PersistentFlags().String("redis-address", "", "Redis address for the stream notifier and the scheduler lease")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "clock.timezone", "timezone")
	bindFlag(cmd, "admin.user_ids", "admin-ids")
	bindFlag(cmd, "reminders.tick_interval", "tick-interval")
	bindFlag(cmd, "notifier.kind", "notifier")
	bindFlag(cmd, "notifier.webhook_url", "webhook-url")
	bindFlag(cmd, "redis.address", "redis-address")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		return err
	}

	return nil
}

func loadRuntime() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

func runServe(ctx context.Context) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	tokens, err := newTokenIssuer(appConfig)
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(signalCtx, appConfig, logger, true)
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	handler, err := app.httpHandler(tokens)
	if err != nil {
		return err
	}
	group, groupCtx := errgroup.WithContext(signalCtx)
	// Request contexts derive from groupCtx so open event streams end on shutdown.
	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return groupCtx },
	}

	group.Go(func() error {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("notifier", appConfig.NotifierKind))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return app.scheduler.Run(groupCtx, appConfig.TickInterval)
	})
	return group.Wait()
}

func runTick(ctx context.Context) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	app, err := newApplication(ctx, appConfig, logger, false)
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	report, err := app.scheduler.Tick(ctx)
	if err != nil {
		return err
	}
	logger.Info("reminder tick finished",
		zap.Int("pre_notified", report.PreNotified),
		zap.Int("fired", report.Fired),
		zap.Int("failed", report.Failed),
		zap.Bool("skipped", report.Skipped))
	return nil
}

func runIssueToken(cmd *cobra.Command, userID int64) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	tokens, err := newTokenIssuer(appConfig)
	if err != nil {
		return err
	}
	token, expiresIn, err := tokens.Issue(cmd.Context(), userID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_in=%d\n", token, expiresIn)
	return err
}
