package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/config"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/console"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/telemetry"
)

var Version = "dev"

// app carries what the subcommands share: the loaded config and one console
// session.
type app struct {
	configPath string
	consoleURL string
	logLevel   string
	exportDir  string

	cfg    *config.Config
	client *console.Client
	tp     *sdktrace.TracerProvider
}

func main() {
	configureLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "dictl",
		Short:         "dictl - Deep Instinct fleet compliance and remediation",
		Long:          "Assess deployment phase readiness, audit policies and remediate events on a Deep Instinct console",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", config.DefaultPath, "Config file path")
	flags.StringVarP(&a.consoleURL, "console", "s", "", "Console URL or FQDN (overrides config)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (overrides config)")
	flags.StringVarP(&a.exportDir, "out", "o", "", "Directory for exported files (overrides config)")

	rootCmd.AddCommand(
		readinessCmd(a),
		phasesCmd(),
		policiesCmd(a),
		eventsCmd(a),
		forwardCmd(a),
		usersCmd(a),
		exclusionsCmd(a),
		agentCmd(a),
		healthCmd(a),
		versionCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_ = a.shutdown()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// connect loads the config, applies flag overrides and opens the console
// session. Commands that talk to the console call it first.
func (a *app) connect(ctx context.Context) (*console.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if a.consoleURL != "" {
		cfg.Console.URL = a.consoleURL
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.exportDir != "" {
		cfg.Export.Dir = a.exportDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	runID := applyLogging(cfg.Logging)

	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}

	tp, err := telemetry.SetupTracing(ctx, telemetry.Options{
		ServiceName:    "dictl",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		LogSpans:       cfg.Tracing.LogSpans,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	a.tp = tp

	client, err := console.New(console.Options{
		URL:              cfg.Console.URL,
		APIKey:           key,
		Timeout:          cfg.RequestTimeout(),
		RetryInitialMs:   cfg.Console.RetryInitialMs,
		RetryMaxMs:       cfg.Console.RetryMaxMs,
		RetryMaxAttempts: cfg.Console.RetryMaxAttempts,
		TracerProvider:   tp,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("version", Version).
		Str("run_id", runID).
		Str("console", client.URL()).
		Str("api_key", key.String()).
		Msg("Console session ready")

	a.cfg = cfg
	a.client = client
	return client, nil
}

func (a *app) shutdown() error {
	if a.tp == nil {
		return nil
	}
	tp := a.tp
	a.tp = nil
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return tp.Shutdown(ctx)
}

// stamp formats t the way export file names carry it.
func stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02_15.04")
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dictl version %s\n", Version)
		},
	}
}
