/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the recurrence engine. Two modes:

  serve: HTTP API plus the embedded cron scheduler. For single-binary
         deployments.
  run:   One batch pass, then exit. For external schedulers (system cron,
         Kubernetes CronJob) and manual ops.

STARTUP SEQUENCE (serve):
  1. Load YAML config (flags override path/port/db)
  2. Initialize SQLite store
  3. Build driver, handler, router, cron scheduler
  4. Start server with graceful shutdown

EXAMPLES:
  # Run the API + scheduler with a config file
  ./server serve --config ./recurrence.yaml

  # One pass for every user, then exit (exit code 1 if any item errored)
  ./server run

  # One pass for a single user
  ./server run --user user-42

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Cron trigger
  - config/config.go: File format
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/recurrence-engine/api"
	"github.com/warp/recurrence-engine/config"
	"github.com/warp/recurrence-engine/recurring"
	"github.com/warp/recurrence-engine/store/sqlite"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Recurring-payment materialization engine",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newRunCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file when given, otherwise uses defaults,
// then applies flag overrides.
func loadConfig(path string, port int, dbPath string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if port != 0 {
		cfg.Port = port
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger().Level(lvl)
}

// buildDriver wires the store into a driver with the configured cutover.
func buildDriver(cfg config.Config, store *sqlite.Store, log zerolog.Logger) (*recurring.Driver, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	driver := recurring.NewDriver(store, store, recurring.SystemClock{}, log)
	driver.CutoverHour = cfg.Scheduler.CutoverHour
	driver.Location = loc
	return driver, nil
}

func newServeCommand() *cobra.Command {
	var (
		configPath string
		port       int
		dbPath     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the embedded cron scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, port, dbPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			store, err := sqlite.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("initialize database: %w", err)
			}
			defer store.Close()

			driver, err := buildDriver(cfg, store, log)
			if err != nil {
				return err
			}

			handler := api.NewHandler(driver, store, store, store, log)
			router := api.NewRouter(handler)

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Port),
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			var sched *api.Scheduler
			if cfg.Scheduler.Enabled {
				loc, _ := cfg.Location()
				sched, err = api.NewScheduler(driver, store, cfg.Scheduler.CronSpec, loc, log)
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			go func() {
				log.Info().Int("port", cfg.Port).Msg("server starting")
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server failed")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP listen port (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	return cmd
}

func newRunCommand() *cobra.Command {
	var (
		configPath string
		dbPath     string
		user       string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one batch pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, 0, dbPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			store, err := sqlite.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("initialize database: %w", err)
			}
			defer store.Close()

			driver, err := buildDriver(cfg, store, log)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var stats recurring.RunStats
			if user != "" {
				stats, err = driver.RunBatch(ctx, recurring.UserID(user))
			} else {
				stats, err = driver.RunAll(ctx)
			}
			if err != nil {
				return err
			}
			if stats.Errors > 0 {
				return fmt.Errorf("%d of %d items failed", stats.Errors,
					stats.Created+stats.Skipped+stats.Errors)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	cmd.Flags().StringVar(&user, "user", "", "run for a single user instead of all users")
	return cmd
}
