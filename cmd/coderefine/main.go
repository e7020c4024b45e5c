package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coderefine/engine/internal/audit"
	"github.com/coderefine/engine/internal/candidate"
	"github.com/coderefine/engine/internal/config"
	"github.com/coderefine/engine/internal/dashboard"
	"github.com/coderefine/engine/internal/dispatch"
	"github.com/coderefine/engine/internal/pipeline"
	"github.com/coderefine/engine/internal/redact"
	"github.com/coderefine/engine/internal/registry"
	"github.com/coderefine/engine/internal/runner"
	"github.com/coderefine/engine/internal/summarizer"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coderefine",
		Short: "Iterative code-refinement controller served over stdio MCP",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.String("audit-db-path", "./coderefine.db", "path to the SQLite audit trail database")
	f.Int("dashboard-port", 8080, "HTTP port for the read-only dashboard")
	f.Bool("dashboard-enabled", true, "serve the read-only dashboard alongside the MCP server")
	f.Int("default-timeout", 120, "default per-probe wall-clock timeout in seconds")
	f.Float64("default-ema-alpha", 0.9, "default EMA smoothing factor in [0,1]")
	f.Bool("verbose", false, "enable verbose logging")
	f.String("summary-model", "claude-3-5-haiku-latest", "Claude model used for post-halt summaries")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("audit_db_path", "audit-db-path")
	bindFlag("dashboard_port", "dashboard-port")
	bindFlag("dashboard_enabled", "dashboard-enabled")
	bindFlag("default_timeout", "default-timeout")
	bindFlag("default_ema_alpha", "default-ema-alpha")
	bindFlag("verbose", "verbose")
	bindFlag("summary_model", "summary-model")

	viper.SetEnvPrefix("CODEREFINE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	// Startup banner goes to stderr: stdout belongs to the stdio JSON-RPC
	// channel once the dispatch server starts listening.
	fmt.Fprintf(os.Stderr, "coderefine %s starting\n", config.Version)
	fmt.Fprintf(os.Stderr, "  Audit DB: %s\n", cfg.AuditDBPath)
	fmt.Fprintf(os.Stderr, "  Dashboard: enabled=%t :%d\n", cfg.DashboardEnabled, cfg.DashboardPort)
	fmt.Fprintf(os.Stderr, "  Default timeout: %ds\n", cfg.DefaultTimeout)
	fmt.Fprintf(os.Stderr, "  Default EMA alpha: %.2f\n", cfg.DefaultEMAAlpha)
	fmt.Fprintln(os.Stderr)

	if dir := filepath.Dir(cfg.AuditDBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create audit db directory: %w", err)
		}
	}

	auditStore, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer auditStore.Close() //nolint:errcheck

	redactor := redact.New()
	reg := registry.New()
	probeRunner := runner.New()
	pl := pipeline.New(probeRunner, redactor)
	pl.Observer = auditStore
	summ := summarizer.New(cfg.SummaryModel)

	dispatchServer := dispatch.New(reg, pl, probeRunner, candidate.DefaultApplier{}, auditStore, redactor, cfg, config.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, shutting down...", sig)
		cancel()
	}()

	var dashServer *dashboard.Server
	if cfg.DashboardEnabled {
		dashServer = dashboard.New(cfg, reg, summ, auditStore)
		go func() {
			if err := dashServer.Start(); err != nil {
				log.Printf("dashboard server error: %v", err)
			}
		}()
	}

	if err := dispatchServer.Serve(ctx); err != nil {
		return fmt.Errorf("dispatch server: %w", err)
	}

	if dashServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := dashServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("dashboard shutdown: %v", err)
		}
	}

	return nil
}
