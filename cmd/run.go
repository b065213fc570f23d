package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"stageq/internal/cli"
	"stageq/internal/config"
	"stageq/internal/logger"
	"stageq/internal/report"
	"stageq/internal/runner"
	"stageq/internal/stats"
	"stageq/internal/tui"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Run a stage plan and print the report",
		Example: `  stageq run --preset read-write --base-url http://localhost:8080
  stageq run --plan plan.yaml --run-timeout 1m --metrics-addr :9091
  STAGEQ_BASE_URL=http://payments:8080 stageq run --preset write --tui`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, v)
		},
	}

	defaults := runner.DefaultConfig()
	f := c.Flags()
	f.String("plan", "", "stage plan file (.yaml, .yml or .json)")
	f.String("preset", "read-write", "built-in plan, used when --plan is empty")
	f.String("base-url", defaults.BaseURL, "base URL of the payment service")
	f.Duration("timeout", defaults.Timeout, "default per-call timeout")
	f.Duration("run-timeout", 0, "bound on the whole run (0 = none)")
	f.IntSlice("accept-read", defaults.AcceptRead, "accepted status codes for read stages")
	f.IntSlice("accept-write", defaults.AcceptWrite, "accepted status codes for write stages")
	f.Int("read-limit", defaults.ReadLimit, "limit query parameter of read calls")
	f.Bool("tui", false, "show the live terminal UI while running")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9091)")

	for _, name := range []string{"plan", "preset", "base-url", "timeout", "run-timeout", "accept-read", "accept-write", "read-limit", "tui", "metrics-addr"} {
		v.BindPFlag(flagKey(name), f.Lookup(name))
	}
	return c
}

// flagKey maps a flag name to its config file and env key.
func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// buildConfig layers defaults, then the plan (file or preset), then any
// value set through flags, env or the config file.
func buildConfig(v *viper.Viper) (runner.Config, error) {
	cfg := runner.DefaultConfig()

	if path := v.GetString("plan"); path != "" {
		fc, err := config.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := fc.Validate(); err != nil {
			return cfg, fmt.Errorf("plan %s: %w", path, err)
		}
		if cfg, err = fc.ToRunnerConfig(cfg); err != nil {
			return cfg, fmt.Errorf("plan %s: %w", path, err)
		}
	} else {
		specs, err := config.Preset(v.GetString("preset"))
		if err != nil {
			return cfg, err
		}
		cfg.Stages = specs
	}

	if v.IsSet("base_url") {
		cfg.BaseURL = v.GetString("base_url")
	}
	if v.IsSet("timeout") {
		cfg.Timeout = v.GetDuration("timeout")
	}
	if v.IsSet("run_timeout") {
		cfg.RunTimeout = v.GetDuration("run_timeout")
	}
	if v.IsSet("accept_read") {
		codes, err := statusList(v, "accept_read")
		if err != nil {
			return cfg, err
		}
		cfg.AcceptRead = codes
	}
	if v.IsSet("accept_write") {
		codes, err := statusList(v, "accept_write")
		if err != nil {
			return cfg, err
		}
		cfg.AcceptWrite = codes
	}
	if v.IsSet("read_limit") {
		cfg.ReadLimit = v.GetInt("read_limit")
	}

	return cfg, cfg.Validate()
}

// statusList reads a status whitelist given as a flag, a config file list
// or a comma separated env value such as "200,201".
func statusList(v *viper.Viper, key string) ([]int, error) {
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		raw = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	}
	codes, err := cast.ToIntSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return codes, nil
}

func runPlan(cmd *cobra.Command, v *viper.Viper) error {
	log, err := logger.New(cmd.ErrOrStderr(), v.GetString("log_level"))
	if err != nil {
		return err
	}

	cfg, err := buildConfig(v)
	if err != nil {
		return err
	}
	inv, err := runner.NewHTTPInvoker(cfg.BaseURL)
	if err != nil {
		return err
	}
	if _, err := net.LookupHost(inv.Hostname()); err != nil {
		return fmt.Errorf("cannot resolve %s: %w", inv.Hostname(), err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	agg := stats.NewAggregator(stats.WithPrometheus(reg))
	sched := runner.NewScheduler(cfg, agg, inv, runner.WithLogger(log))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	finished := make(chan struct{})

	if addr := v.GetString("metrics_addr"); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		serveMetrics(g, gctx, ln, reg, finished, log)
	}

	g.Go(func() error {
		defer close(finished)
		if v.GetBool("tui") {
			return runTUI(gctx, sched, agg, cfg.Stages, cmd.OutOrStdout())
		}
		_, err := cli.Run(gctx, sched, agg, cfg.Stages, cli.Options{
			Out:      cmd.OutOrStdout(),
			Progress: cmd.ErrOrStderr(),
		})
		return err
	})

	return g.Wait()
}

// serveMetrics exposes reg until the run has finished.
func serveMetrics(g *errgroup.Group, ctx context.Context, ln net.Listener, reg *prometheus.Registry, finished <-chan struct{}, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-finished:
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func runTUI(ctx context.Context, sched *runner.Scheduler, agg *stats.Aggregator, specs []runner.StageSpec, out io.Writer) error {
	final, err := tea.NewProgram(tui.NewModel(ctx, sched, specs), tea.WithAltScreen()).Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	m := final.(tui.Model)
	if m.Err != nil {
		return m.Err
	}
	if m.Result == nil {
		return errors.New("tui exited before the run finished")
	}
	return report.Render(out, report.FromResult(agg, m.Result))
}
