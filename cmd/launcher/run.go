package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cevalogistics/launcher"
	"github.com/cevalogistics/launcher/internal/browser"
	"github.com/cevalogistics/launcher/internal/console"
	"github.com/cevalogistics/launcher/internal/env"
	"github.com/cevalogistics/launcher/internal/history/factory"
	"github.com/cevalogistics/launcher/internal/logger"
	"github.com/cevalogistics/launcher/internal/metrics"
	"github.com/cevalogistics/launcher/internal/process"
)

// newOpener is replaced in tests so no real browser is started.
var newOpener = func() launcher.Opener { return browser.NewSystem() }

func createRunCommand(globalFlags *GlobalFlags, flags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch the backend and the dashboard",
		Long: `Run checks the backend, starts it when it is not up, detects devices and
starts the dashboard proxy. Progress is printed as it happens.

Spawned processes are never stopped by the launcher; they keep running after
it exits.

Examples:
  launcher run --open
  launcher run --prompt             # press Enter to (re)open the dashboard`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLaunch(ctx, globalFlags, flags, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&flags.Open, "open", false, "open the dashboard in the browser once ready")
	cmd.Flags().BoolVar(&flags.Prompt, "prompt", false, "after ready, open the dashboard each time Enter is pressed")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 0, "give up waiting for ready after this long (0 = no limit)")
	return cmd
}

// launchRuntime bundles what a launch needs besides the orchestrator itself.
type launchRuntime struct {
	log       *slog.Logger
	sup       *process.ExecSupervisor
	resources *metrics.ResourceCollector
	sinks     io.Closer
	servers   []*http.Server
	closers   []io.Closer
}

func (r *launchRuntime) Close() {
	if r.resources != nil {
		r.resources.Stop()
	}
	for _, s := range r.servers {
		_ = shutdown(s)
	}
	if r.sinks != nil {
		if err := r.sinks.Close(); err != nil {
			r.log.Warn("close history sinks", "error", err)
		}
	}
	for _, c := range r.closers {
		_ = c.Close()
	}
}

func runLaunch(ctx context.Context, globalFlags *GlobalFlags, flags *RunFlags, in io.Reader, out, errOut io.Writer) error {
	cfg, err := launcher.LoadConfig(globalFlags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	lg, logCloser, err := logger.New(cfg.Log, errOut)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(lg)
	rt := &launchRuntime{log: lg, closers: []io.Closer{logCloser}}
	defer rt.Close()

	if cfg.Metrics.Enabled {
		if err := launcher.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	sinks, err := factory.NewSinks(cfg.History.Sinks)
	if err != nil {
		return fmt.Errorf("history sinks: %w", err)
	}
	rt.sinks = sinks

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate launcher executable: %w", err)
	}
	rt.sup = process.NewExecSupervisor(env.New(cfg.UseOSEnv, cfg.Env), cfg.Log)

	rt.resources = metrics.NewResourceCollector(5*time.Second, rt.sup.PIDs)
	if cfg.Metrics.Enabled {
		if err := rt.resources.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register resource metrics: %w", err)
		}
	}
	rt.resources.Start(ctx)

	var sink launcher.HistorySink
	if len(sinks) > 0 {
		sink = sinks
	}
	o, err := launcher.NewOrchestrator(cfg, launcher.Deps{
		Supervisor: rt.sup,
		Opener:     newOpener(),
		History:    sink,
		Logger:     lg,
		Self:       self,
	})
	if err != nil {
		return err
	}

	if cfg.Console.Listen != "" {
		srv, err := console.NewServer(cfg.Console.Listen, console.New(o, rt.sup, rt.resources, lg))
		if err != nil {
			return fmt.Errorf("start console: %w", err)
		}
		rt.servers = append(rt.servers, srv)
		lg.Info("control API listening", "addr", srv.Addr)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		srv, err := serveMetrics(cfg.Metrics.Listen, lg)
		if err != nil {
			return err
		}
		rt.servers = append(rt.servers, srv)
	}

	view := newConsoleView(out, cfg.Log.NoColor)
	ch, cancel := o.Subscribe()
	defer cancel()
	viewDone := make(chan struct{})
	go func() {
		defer close(viewDone)
		view.follow(ch)
	}()

	o.Start()
	waitCtx := ctx
	if flags.Timeout > 0 {
		var cancelWait context.CancelFunc
		waitCtx, cancelWait = context.WithTimeout(ctx, flags.Timeout)
		defer cancelWait()
	}
	snap, err := o.Wait(waitCtx)
	if err != nil {
		cancel()
		<-viewDone
		return fmt.Errorf("launch interrupted in state %s: %w", snap.State, err)
	}
	<-viewDone

	if !snap.Ready {
		return fmt.Errorf("launch failed: %s", snap.Err)
	}
	_, _ = fmt.Fprintf(out, "Dashboard: %s\n", launcher.DashboardURL(cfg))

	if flags.Open {
		if err := o.OpenDashboard(); err != nil {
			lg.Warn("open dashboard", "error", err)
		}
	}
	if flags.Prompt {
		return promptOpen(ctx, in, out, o)
	}
	if len(rt.servers) > 0 {
		<-ctx.Done()
	}
	return nil
}

// promptOpen opens the dashboard once per input line until EOF or ctx ends.
func promptOpen(ctx context.Context, in io.Reader, out io.Writer, o *launcher.Orchestrator) error {
	lines := make(chan struct{})
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		_, _ = fmt.Fprint(out, "Press Enter to open the dashboard (Ctrl-C to quit): ")
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(out)
			return nil
		case _, ok := <-lines:
			if !ok {
				_, _ = fmt.Fprintln(out)
				return nil
			}
			if err := o.OpenDashboard(); err != nil && !errors.Is(err, launcher.ErrNotReady) {
				_, _ = fmt.Fprintf(out, "could not open the dashboard: %v\n", err)
			}
		}
	}
}

func serveMetrics(addr string, lg *slog.Logger) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", launcher.MetricsHandler())
	srv, err := listenAndServe(addr, mux, lg)
	if err != nil {
		return nil, fmt.Errorf("start metrics server: %w", err)
	}
	lg.Info("metrics listening", "addr", srv.Addr)
	return srv, nil
}
