package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/metrics"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
	"github.com/kozaktomas/photo-dedup/internal/source"
	"github.com/kozaktomas/photo-dedup/internal/web"
	"github.com/kozaktomas/photo-dedup/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis API server",
	Long: `Start the photo-dedup HTTP API.

The server runs one analysis at a time, streams progress over Server-Sent
Events and keeps the last run's groups and similarity scores for lookup.
Photos are posted inline or selected from PhotoPrism when PHOTOPRISM_URL is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default from WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from WEB_HOST)")
}

// resolveServeHostPort applies the --port and --host flags over the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	ctx := context.Background()
	d, err := newDeps(ctx, cfg, true, true)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.holdModel(ctx); err != nil {
		// Runs retry the load; the visual layer fails the run if it still cannot load.
		d.logger.Warn("embedding model unavailable at startup", "error", err)
	} else if d.extractor != nil {
		fmt.Printf("Embedding model %s loaded\n", d.extractor.ModelName())
	}
	if d.cache != nil {
		fmt.Printf("Feature cache enabled (PostgreSQL)\n")
	}
	if d.captioner != nil {
		fmt.Printf("Caption fallback enabled (%s)\n", d.captioner.Provider().Name())
	}

	m := metrics.New(serviceName)
	p := d.newPipeline(pipeline.MultiTelemetry{pipeline.NewLogTelemetry(d.logger), m})

	var loader handlers.PhotoLoader
	var lib *source.Library
	if cfg.PhotoPrism.URL != "" {
		lib = source.NewLibrary(cfg.PhotoPrism, d.logger)
		loader = lib
		fmt.Printf("PhotoPrism source enabled (%s)\n", cfg.PhotoPrism.URL)
	}

	analysis := handlers.NewAnalysisHandler(p, loader, pipelineOptions(cfg))
	server := web.NewServer(cfg, analysis, m)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		p.Cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting photo-dedup API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	err = server.Start()
	if lib != nil {
		if closeErr := lib.Close(context.Background()); closeErr != nil {
			fmt.Printf("Warning: failed to close PhotoPrism session: %v\n", closeErr)
		}
	}
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
