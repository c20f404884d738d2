package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/minimib/internal/access"
	"github.com/roach88/minimib/internal/agent"
	"github.com/roach88/minimib/internal/config"
	"github.com/roach88/minimib/internal/metrics"
	"github.com/roach88/minimib/internal/mib"
	"github.com/roach88/minimib/internal/monitor"
	"github.com/roach88/minimib/internal/notify"
	"github.com/roach88/minimib/internal/registry"
	"github.com/roach88/minimib/internal/store"
	"github.com/roach88/minimib/internal/transport"
)

// shutdownTimeout bounds the final save and the metrics server shutdown.
const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config string
	Listen string

	// Sampler replaces the host CPU sampler.
	Sampler monitor.Sampler
	// Ready is called once the agent is accepting requests. metricsAddr is
	// nil when the metrics endpoint is disabled.
	Ready func(snmpAddr, metricsAddr net.Addr)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}
	return newRunCommand(opts)
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent",
		Long: `Serve the attribute registry over SNMP and watch CPU usage.

The agent restores saved attributes at start, answers GET, GETNEXT and SET
requests, samples CPU usage every monitor interval and alerts the manager
by trap and mail when usage crosses the threshold. It stops cleanly on
SIGINT or SIGTERM, saving state on the way out.

Exit codes:
  0 - Stopped by signal
  1 - Agent failed while running
  2 - Configuration or startup error`,
		Example: `  minimib run --config /etc/minimib.yaml
  minimib run --listen 127.0.0.1:1161 -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "config file (defaults apply when omitted)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "override the UDP listen address")

	return cmd
}

func runAgent(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	startupError := func(code, message string, err error) error {
		_ = formatter.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
		return WrapExitError(ExitCommandError, message, err)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return startupError(ErrCodeConfig, "load config", err)
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	defs, err := compileSchema(cfg.Schema)
	if err != nil {
		return startupError(ErrCodeSchema, "compile schema", err)
	}
	reg, err := registry.New(defs)
	if err != nil {
		return startupError(ErrCodeSchema, "build registry", err)
	}

	gw, err := store.Open(cfg.Persistence.Backend, cfg.Persistence.Path, defs)
	if err != nil {
		return startupError(ErrCodeConfig, "open state store", err)
	}
	defer gw.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.LoadInto(ctx, gw, reg); err != nil {
		return startupError(ErrCodeConfig, "restore state", err)
	}

	policy, err := cfg.Policy()
	if err != nil {
		return startupError(ErrCodeConfig, "access policy", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	handler := agent.New(reg, access.New(policy), gw, agent.WithObserver(m))
	listener, err := transport.Listen(cfg.Listen, handler, cfg.Communities, transport.WithObserver(m))
	if err != nil {
		return startupError(ErrCodeConfig, "listen", err)
	}
	defer listener.Close()

	sinks, err := buildSinks(cfg, reg)
	if err != nil {
		return startupError(ErrCodeConfig, "notification sinks", err)
	}
	dispatchOpts := []notify.Option{notify.WithTimeout(cfg.Notify.Timeout), notify.WithObserver(m)}
	if cfg.Alerts.DB != "" {
		history, err := store.OpenSQLite(cfg.Alerts.DB, defs)
		if err != nil {
			return startupError(ErrCodeStore, "open alert history", err)
		}
		defer history.Close()
		dispatchOpts = append(dispatchOpts, notify.WithRecorder(history))
	}
	dispatcher := notify.NewDispatcher(sinks, dispatchOpts...)

	sampler := opts.Sampler
	if sampler == nil {
		cpu, err := monitor.NewCPUSampler(cfg.Monitor.Window)
		if err != nil {
			return startupError(ErrCodeConfig, "cpu sampler", err)
		}
		sampler = cpu
	}
	mon, err := monitor.New(reg, sampler, dispatcher, monitor.Config{
		Interval:     cfg.Monitor.Interval,
		Sampled:      cfg.Monitor.Sampled,
		Threshold:    cfg.Monitor.Threshold,
		Manager:      cfg.Monitor.Manager,
		ManagerEmail: cfg.Monitor.ManagerEmail,
		Uptime:       cfg.Monitor.Uptime,
		Agent:        cfg.Agent,
	}, monitor.WithObserver(m))
	if err != nil {
		return startupError(ErrCodeConfig, "monitor", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Serve(gctx) })
	g.Go(func() error { return mon.Run(gctx) })

	var metricsAddr net.Addr
	if cfg.Metrics.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			stop()
			_ = g.Wait()
			return startupError(ErrCodeConfig, "metrics listen", err)
		}
		metricsAddr = ln.Addr()
		serveMetrics(gctx, g, ln, promReg)
	}

	slog.Info("agent started",
		"listen", listener.Addr().String(),
		"attributes", reg.Space().Len(),
		"backend", cfg.Persistence.Backend,
		"sinks", len(sinks),
	)
	if opts.Ready != nil {
		opts.Ready(listener.Addr(), metricsAddr)
	}

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := gw.Save(saveCtx, reg.Snapshot()); err != nil {
		slog.Error("final save failed", "error", err)
		runErr = errors.Join(runErr, err)
	}
	slog.Info("agent stopped")

	if runErr != nil {
		_ = formatter.Error(ErrCodeGeneric, runErr.Error(), nil)
		return WrapExitError(ExitFailure, "agent stopped with an error", runErr)
	}
	return nil
}

// serveMetrics runs the /metrics endpoint on ln until ctx ends.
func serveMetrics(ctx context.Context, g *errgroup.Group, ln net.Listener, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		slog.Info("metrics listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// buildSinks creates the enabled alert sinks. Trap payload identifiers are
// taken from the registry so a custom schema moves them too.
func buildSinks(cfg *config.Config, reg *registry.Registry) ([]notify.Sink, error) {
	var sinks []notify.Sink

	if !cfg.Trap.Disabled {
		trapOID, err := mib.ParseOID(cfg.Trap.TrapOID)
		if err != nil {
			return nil, fmt.Errorf("trap oid: %w", err)
		}
		oidOf := func(name string) mib.OID {
			if def, ok := reg.Lookup(name); ok {
				return def.OID
			}
			return nil
		}
		sinks = append(sinks, notify.NewTrapSink(notify.TrapConfig{
			Target:       cfg.Trap.Target,
			Port:         cfg.Trap.Port,
			Community:    cfg.Trap.Community,
			Timeout:      cfg.Trap.Timeout,
			TrapOID:      trapOID,
			ValueOID:     oidOf(cfg.Monitor.Sampled),
			ThresholdOID: oidOf(cfg.Monitor.Threshold),
			EmailOID:     oidOf(cfg.Monitor.ManagerEmail),
		}))
	}

	if !cfg.Mail.Disabled {
		sinks = append(sinks, notify.NewMailSink(notify.MailConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			From:     cfg.Mail.From,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			Timeout:  cfg.Mail.Timeout,
		}))
	}
	return sinks, nil
}
