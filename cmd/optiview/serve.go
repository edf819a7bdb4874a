package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/optiview/optiview/internal/app"
	"github.com/optiview/optiview/internal/config"
	"github.com/optiview/optiview/internal/observability"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		printBanner(cfg)

		if cfg.Server.MetricsEnabled {
			observability.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		}

		application, err := app.New(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if err := application.Start(ctx); err != nil {
			return err
		}

		waitErr := application.WaitForShutdown(ctx)
		if stopErr := application.Stop(context.Background()); waitErr == nil {
			waitErr = stopErr
		}
		return waitErr
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
}

func printBanner(cfg *config.Config) {
	fmt.Println("OptiView - multi-objective optimization dashboard")
	fmt.Printf("  version:  %s\n", version)
	fmt.Printf("  addr:     %s\n", cfg.Server.Addr)
	fmt.Printf("  data dir: %s\n", cfg.DataDir)
	fmt.Printf("  storage:  %s\n", cfg.Storage.Type)
	fmt.Println()
}
