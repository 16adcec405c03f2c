package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cevalogistics/launcher"
	"github.com/cevalogistics/launcher/pkg/client"
)

const defaultAPIUrl = "http://127.0.0.1:3100/launcher"

func addRemoteFlags(cmd *cobra.Command, flags *RemoteFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "control API base URL (default from console.listen, else "+defaultAPIUrl+")")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

// newClient resolves the control API URL from flags, then config.
func newClient(globalFlags *GlobalFlags, flags *RemoteFlags) (*client.Client, error) {
	base := flags.APIUrl
	if base == "" {
		cfg, err := launcher.LoadConfig(globalFlags.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		base = defaultAPIUrl
		if cfg.Console.Listen != "" {
			base = "http://" + cfg.Console.Listen + "/launcher"
		}
	}
	return client.New(client.Config{BaseURL: base, Timeout: flags.APITimeout}), nil
}

func createStatusCommand(globalFlags *GlobalFlags, flags *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running launcher",
		Long: `Status queries the control API of a running launcher.

Examples:
  launcher status
  launcher status --wait --interval 1s
  launcher status --api-url http://127.0.0.1:3100/launcher`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(globalFlags, flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var st client.Status
			if flags.Wait {
				st, err = c.WaitReady(ctx, flags.Interval)
			} else {
				st, err = c.Status(ctx)
			}
			if st.State != "" {
				printStatus(cmd.OutOrStdout(), st)
			}
			if err != nil {
				return err
			}
			procs, err := c.Processes(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), procs)
		},
	}
	addRemoteFlags(cmd, flags)
	cmd.Flags().BoolVar(&flags.Wait, "wait", false, "wait until the launcher is ready or failed")
	cmd.Flags().DurationVar(&flags.Interval, "interval", 500*time.Millisecond, "poll interval for --wait")
	return cmd
}

func createOpenCommand(globalFlags *GlobalFlags, flags *RemoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Ask a running launcher to open the dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(globalFlags, flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := c.Open(ctx)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	addRemoteFlags(cmd, flags)
	return cmd
}

func printStatus(w io.Writer, s client.Status) {
	_, _ = fmt.Fprintf(w, "state=%s ready=%t robots=%d cameras=%d\n%s\n", s.State, s.Ready, s.Robots, s.Cameras, s.Status)
	if s.Error != "" {
		_, _ = fmt.Fprintf(w, "error: %s\n", s.Error)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
