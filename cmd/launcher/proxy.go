package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cevalogistics/launcher"
	"github.com/cevalogistics/launcher/internal/logger"
	"github.com/cevalogistics/launcher/internal/server"
)

func createProxyCommand(globalFlags *GlobalFlags, flags *ProxyFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve the dashboard and forward API calls to the backend",
		Long: `Proxy serves the dashboard bundle on a single origin and forwards API
requests to the backend. Without a built bundle, page navigation is
redirected to the development server.

Examples:
  launcher proxy
  launcher proxy --listen 127.0.0.1:3000 --config launcher.toml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProxy(cmd, globalFlags, flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "listen address (overrides proxy.listen)")
	return cmd
}

func runProxy(cmd *cobra.Command, globalFlags *GlobalFlags, flags *ProxyFlags) error {
	cfg, err := launcher.LoadConfig(globalFlags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if flags.Listen != "" {
		cfg.Proxy.Listen = flags.Listen
	}
	// the launcher that spawned this process may be writing cfg.Log.File
	lg, closer, err := logger.New(cfg.Log.ForComponent("proxy"), cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = closer.Close() }()

	if cfg.Metrics.Enabled {
		if err := launcher.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	lg.Info("dashboard proxy listening", "addr", cfg.Proxy.Listen, "backend", cfg.Proxy.BackendOrigin, "bundle", cfg.Proxy.BundleDir)
	return server.Serve(ctx, cfg.Proxy, lg)
}
