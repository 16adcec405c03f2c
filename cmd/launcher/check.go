package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cevalogistics/launcher"
	"github.com/cevalogistics/launcher/internal/orchestrator"
	"github.com/cevalogistics/launcher/internal/probe"
)

func createCheckCommand(globalFlags *GlobalFlags, flags *CheckFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe the backend once and report detected devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := launcher.LoadConfig(globalFlags.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			timeout := flags.Timeout
			if timeout <= 0 {
				timeout = cfg.Backend.DeviceTimeout
			}
			url := cfg.Backend.Addr.URL(cfg.Backend.StatusPath)
			p := probe.NewHTTP(launcher.BackendName, url, timeout)
			counts, err := probe.FetchInventory(context.Background(), p)
			if err != nil {
				return fmt.Errorf("backend at %s: %w", url, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Backend running at %s\n%s\n", url, orchestrator.DeviceSummary(counts))
			return nil
		},
	}
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 0, "probe timeout (default backend.device_timeout)")
	return cmd
}
