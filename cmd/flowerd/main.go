package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/flower/pkg/api"
	"github.com/cuemby/flower/pkg/config"
	"github.com/cuemby/flower/pkg/log"
	"github.com/cuemby/flower/pkg/metrics"
	"github.com/cuemby/flower/pkg/queue"
	"github.com/cuemby/flower/pkg/reaper"
	"github.com/cuemby/flower/pkg/storage"
)

var (
	// Version is set via ldflags during build.
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "flowerd",
	Short:   "flowerd is a federated learning task-exchange server",
	Version: Version,
}

var cfgFile string

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("flowerd version %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task queue server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("data-dir", "", "bbolt database path, or \":memory:\" (overrides config)")
	serveCmd.Flags().String("health-addr", "", "health/metrics HTTP bind address (overrides config)")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("health-addr"); v != "" {
		cfg.HealthAddr = v
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Init(cfg.LogConfig())
	metrics.SetVersion(Version)

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	q := queue.New(store, nil)
	bucketNames, err := q.Initialize()
	if err != nil {
		return fmt.Errorf("initialize queue: %w", err)
	}
	log.Logger.Info().Strs("buckets", bucketNames).Msg("queue initialized")
	metrics.MarkCritical("storage")
	metrics.RegisterComponent("storage", true, "ready")

	collector := metrics.NewCollector(q, 15*time.Second)
	collector.Start()

	r := reaper.New(q, cfg.ReaperInterval)
	r.Start()

	server := api.NewServer(q)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.HealthAddr); err != nil {
			errCh <- fmt.Errorf("health server error: %w", err)
		}
	}()
	log.Logger.Info().Str("addr", cfg.HealthAddr).Msg("health/metrics server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
	case err := <-errCh:
		log.Logger.Error().Err(err).Msg("server error")
	}

	r.Stop()
	collector.Stop()
	if err := server.Stop(); err != nil {
		log.Logger.Warn().Err(err).Msg("health server shutdown error")
	}
	if err := q.Close(); err != nil {
		return fmt.Errorf("close queue: %w", err)
	}

	log.Logger.Info().Msg("shutdown complete")
	return nil
}
