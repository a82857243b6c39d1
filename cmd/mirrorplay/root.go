// root.go contains the root command, shared bootstrap, and the structured
// logger setup used by every subcommand.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/api"
	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/config"
	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/metrics"
	"github.com/mirrorlabsllc-hash/mirrorplay-sub002/internal/monitor"
)

const (
	defaultConfigPath = "configs/config.yaml"
	clientVersion     = "1.0.0"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mirrorplay",
	Short: "Voice-first communication practice client",
	Long: `Mirrorplay records your spoken responses, auto-submits them when you
fall silent, and plays them against scored practice scenarios: solo
rehearsals against an AI counterpart, or turn-based duo sessions with
a partner.`,
	Version:       clientVersion,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")

	rootCmd.AddCommand(rehearseCmd)
	rootCmd.AddCommand(practiceCmd)
	rootCmd.AddCommand(duoCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mirrorplay %s\n", clientVersion)
	},
}

// app bundles the pieces every subcommand needs
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *api.Client
	metrics *metrics.Metrics
	monitor *monitor.Server
}

// setup loads configuration, builds the logger, API client, and metrics, and
// starts the monitor server when enabled. MIRRORPLAY_API_KEY may come from a
// .env file.
func setup() (*app, error) {
	// Missing .env is fine, the key may come from the environment or YAML.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Client starting",
		slog.String("version", clientVersion),
		slog.String("config_path", configPath),
		slog.String("base_url", cfg.Client.BaseURL),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Duration("silence_threshold", cfg.Silence.GetThresholdDuration()),
	)

	client, err := api.NewClient(api.Config{
		BaseURL:       cfg.Client.BaseURL,
		APIKey:        cfg.Client.APIKey,
		Timeout:       cfg.Client.GetTimeoutDuration(),
		MaxRetries:    cfg.Client.MaxRetries,
		MaxConcurrent: cfg.Client.MaxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		metrics: metrics.NewMetrics(),
	}

	if cfg.Monitor.Enabled {
		a.monitor = monitor.NewServer(cfg.Monitor, logger, a.metrics)
		a.monitor.RegisterStats("api_client", func() any { return client.GetStats() })
		if err := a.monitor.Start(); err != nil {
			return nil, fmt.Errorf("failed to start monitor server: %w", err)
		}
	}

	return a, nil
}

// shutdown releases everything setup acquired
func (a *app) shutdown() {
	if a.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := a.monitor.Stop(ctx); err != nil {
			a.logger.Error("Error stopping monitor server", slog.String("error", err.Error()))
		}
	}

	a.client.Close()
	a.logger.Info("Client stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
