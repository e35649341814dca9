package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corralhq/corral/pkg/api"
	"github.com/corralhq/corral/pkg/config"
	"github.com/corralhq/corral/pkg/coordinator"
	"github.com/corralhq/corral/pkg/log"
	"github.com/corralhq/corral/pkg/metrics"
	"github.com/corralhq/corral/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "corral",
	Short: "Corral - fleet application lifecycle control plane",
	Long: `Corral accepts requests to update, start, stop, or restart application
instances across a fleet of servers and dispatches them as externally
executed Ansible playbook runs. It persists intent, batches related work,
schedules it through a bounded worker pool, tracks live progress, and keeps
a version-history ledger.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Corral version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	serverCmd.Flags().String("config", "", "Path to config file")
	serverCmd.Flags().Duration("drain-timeout", 30*time.Second, "How long to wait for in-flight playbooks on shutdown")
	rootCmd.AddCommand(serverCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the control-plane server",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		drainTimeout, _ := cmd.Flags().GetDuration("drain-timeout")

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Logging.Level),
			JSONOutput: cfg.Logging.JSON,
		})
		metrics.SetVersion(Version)

		store, err := storage.NewGormStore(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open store: %v", err)
		}
		defer store.Close()
		if err := store.AutoMigrate(); err != nil {
			return fmt.Errorf("failed to migrate schema: %v", err)
		}
		metrics.RegisterComponent("store", true, "")

		coord := coordinator.New(cfg, store)
		if err := coord.Start(cmd.Context()); err != nil {
			return fmt.Errorf("failed to start coordinator: %v", err)
		}

		apiServer := api.NewServer(coord, cfg.API)
		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(); err != nil {
				errCh <- fmt.Errorf("API server error: %v", err)
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.WithComponent("main").Info().Str("signal", sig.String()).Msg("shutting down")
		case err := <-errCh:
			log.WithComponent("main").Error().Err(err).Msg("API server failed")
		}

		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()

		if err := apiServer.Stop(ctx); err != nil {
			log.WithComponent("main").Error().Err(err).Msg("API shutdown error")
		}
		if err := coord.Shutdown(ctx); err != nil {
			log.WithComponent("main").Warn().Err(err).Msg("drain deadline reached")
		}

		log.WithComponent("main").Info().Msg("shutdown complete")
		return nil
	},
}
