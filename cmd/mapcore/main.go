// Package main provides the entry point for the mapcore map session service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/mapcore/internal/adapters/regions"
	"github.com/jobrunner/mapcore/internal/app"
	"github.com/jobrunner/mapcore/internal/config"
	"github.com/jobrunner/mapcore/internal/domain"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mapcore",
	Short: "mapcore - map interaction and layer synchronization engine",
	Long: `mapcore keeps an ordered set of map layers, regions of interest and
drawn query features in sync with a browser map surface.

Features:
  - Layer store with ordering, visibility, opacity and colors
  - Region drawing, naming and GeoJSON/GeoPackage import
  - Point and polygon queries against an extraction pipeline
  - Zoom to layers, features and geocoded addresses
  - Session restore from local, AWS S3, Azure or HTTP storage
  - TLS with automatic certificate management
  - Prometheus metrics and OpenTelemetry tracing`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("mapcore %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "List the regions a GeoJSON or GeoPackage file would import",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")

	// Server flags
	rootCmd.Flags().String("host", "0.0.0.0", "server host")
	rootCmd.Flags().Int("port", 8080, "server port")
	rootCmd.Flags().Bool("tls", false, "enable TLS")
	rootCmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
	rootCmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")
	rootCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")

	// Storage and import flags
	rootCmd.Flags().String("storage-type", "none", "session restore storage (none, local, s3, azure, http)")
	rootCmd.Flags().String("storage-path", "./data", "local storage path")
	rootCmd.Flags().String("import-path", "", "directory watched for region files")

	// Upstream flags
	rootCmd.Flags().String("extraction-url", "", "extraction pipeline base URL")
	rootCmd.Flags().Bool("geocoder", false, "enable address search via Nominatim")
	rootCmd.Flags().String("otlp-endpoint", "", "OTLP gRPC endpoint for traces")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("server.host", rootCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("tls.enabled", rootCmd.Flags().Lookup("tls"))
	_ = viper.BindPFlag("tls.domains", rootCmd.Flags().Lookup("tls-domains"))
	_ = viper.BindPFlag("tls.email", rootCmd.Flags().Lookup("tls-email"))
	_ = viper.BindPFlag("server.cors.allowed_origins", rootCmd.Flags().Lookup("cors"))
	_ = viper.BindPFlag("storage.type", rootCmd.Flags().Lookup("storage-type"))
	_ = viper.BindPFlag("storage.local_path", rootCmd.Flags().Lookup("storage-path"))
	_ = viper.BindPFlag("import.path", rootCmd.Flags().Lookup("import-path"))
	_ = viper.BindPFlag("extraction.base_url", rootCmd.Flags().Lookup("extraction-url"))
	_ = viper.BindPFlag("geocoder.enabled", rootCmd.Flags().Lookup("geocoder"))
	_ = viper.BindPFlag("tracing.endpoint", rootCmd.Flags().Lookup("otlp-endpoint"))

	rootCmd.AddCommand(versionCmd, inspectCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting mapcore",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage_type", cfg.Storage.Type,
		"geocoder", cfg.Geocoder.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- application.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	reader := regions.NewReader()
	if !reader.Supports(args[0]) {
		return fmt.Errorf("unsupported region file: %s", args[0])
	}
	candidates, err := reader.ReadRegions(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPOLYGONS\tAREA")
	for _, c := range candidates {
		fmt.Fprintf(w, "%s\t%d\t%s\n", c.Name, len(c.Geometry), domain.FormatArea(domain.AreaKm2(c.Geometry)))
	}
	return w.Flush()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
