package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags, &RunFlags{}),
		createProxyCommand(globalFlags, &ProxyFlags{}),
		createCheckCommand(globalFlags, &CheckFlags{}),
		createStatusCommand(globalFlags, &RemoteFlags{}),
		createOpenCommand(globalFlags, &RemoteFlags{}),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "launcher",
		Short: "Start the robot-control backend and its dashboard",
		Long: `Launcher makes sure the robot-control backend is running, detects the
connected robots and cameras, and starts the dashboard proxy in front of it.

Examples:
  launcher run --open               # launch and open the dashboard when ready
  launcher run --config launcher.toml --prompt
  launcher proxy                    # run only the dashboard proxy
  launcher check                    # probe the backend once
  launcher status --wait            # query a running launcher's control API`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the launcher version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "launcher", version)
		},
	}
}
