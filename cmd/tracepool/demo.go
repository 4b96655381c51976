package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/zoobzio/tracepool"
	"github.com/zoobzio/tracepool/localtrace"
	"github.com/zoobzio/tracepool/oteltrace"
	"github.com/zoobzio/tracepool/workpool"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func newDemoCmd() *cobra.Command {
	var configPath string
	flags := DefaultDemoConfig()

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a workload through a traced pool",
		Long: `Run a small workload through a traced worker pool and print the trace.

Every unit starts a span from the context it runs with. With the local
backend the finished spans are printed as a tree; with the otel backend the
OpenTelemetry stdout exporter writes them as JSON.

Use --no-parent to submit without an active span, and --always-trace to have
the decorator start a root span for such submissions.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadDemoConfig(configPath)
			if err != nil {
				return err
			}
			overlayFlags(cmd, &cfg, flags)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "YAML config file")
	f.IntVarP(&flags.Workers, "workers", "w", flags.Workers, "pool workers")
	f.IntVarP(&flags.Tasks, "tasks", "n", flags.Tasks, "units per submission")
	f.StringVar(&flags.Backend, "backend", flags.Backend, "tracing backend (local, otel)")
	f.StringVarP(&flags.Mode, "mode", "m", flags.Mode,
		"submission mode (execute, submit, invoke-all, invoke-any, schedule, periodic)")
	f.BoolVar(&flags.AlwaysTrace, "always-trace", flags.AlwaysTrace, "start a root span when no context is active")
	f.BoolVar(&flags.NoParent, "no-parent", flags.NoParent, "submit without an active span")
	f.BoolVar(&flags.RefCounting, "ref-counting", flags.RefCounting, "keep the parent span open until pooled work releases it (local backend)")
	f.DurationVar(&flags.Period, "period", flags.Period, "period of periodic mode")
	f.IntVar(&flags.Firings, "firings", flags.Firings, "firings to wait for in periodic mode")
	f.BoolVar(&flags.Metrics, "metrics", flags.Metrics, "print dispatch metrics")
	f.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "log level (debug, info, warn, error)")

	return cmd
}

// overlayFlags copies the flags the user set onto cfg.
func overlayFlags(cmd *cobra.Command, cfg *DemoConfig, flags DemoConfig) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("workers", func() { cfg.Workers = flags.Workers })
	set("tasks", func() { cfg.Tasks = flags.Tasks })
	set("backend", func() { cfg.Backend = flags.Backend })
	set("mode", func() { cfg.Mode = flags.Mode })
	set("always-trace", func() { cfg.AlwaysTrace = flags.AlwaysTrace })
	set("no-parent", func() { cfg.NoParent = flags.NoParent })
	set("ref-counting", func() { cfg.RefCounting = flags.RefCounting })
	set("period", func() { cfg.Period = flags.Period })
	set("firings", func() { cfg.Firings = flags.Firings })
	set("metrics", func() { cfg.Metrics = flags.Metrics })
	set("log-level", func() { cfg.LogLevel = flags.LogLevel })
}

// tag is a key-value pair set on a workload span.
type tag struct {
	key, value string
}

// tracer is what the demo needs from a tracing backend besides the
// tracepool.Backend itself: starting spans for the workload, and flushing.
type tracer interface {
	start(ctx context.Context, name string, tags ...tag) (context.Context, func())
	backend() tracepool.Backend
	flush(ctx context.Context, out io.Writer) error
}

func runDemo(ctx context.Context, out, errOut io.Writer, cfg DemoConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	var t tracer
	switch cfg.Backend {
	case BackendOtel:
		t, err = newOtelTracer(out)
		if err != nil {
			return err
		}
	default:
		t = newLocalTracer(cfg.RefCounting, logger)
	}

	reg := prometheus.NewRegistry()
	workers := workpool.New(cfg.Workers, workpool.WithLogger(logger))
	sched := tracepool.NewScheduler(workers, t.backend(),
		tracepool.WithRequireActiveContext(!cfg.AlwaysTrace),
		tracepool.WithLogger(logger),
		tracepool.WithMetrics(tracepool.NewMetrics(reg)),
	)

	submitCtx := ctx
	finishParent := func() {}
	if !cfg.NoParent {
		submitCtx, finishParent = t.start(ctx, "demo."+cfg.Mode)
	}

	runErr := runWorkload(submitCtx, sched, t, cfg)
	finishParent()

	sched.Shutdown()
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sched.AwaitTermination(waitCtx); err != nil {
		logger.Warn("pool did not terminate", slog.Any("error", err))
	}
	if runErr != nil {
		return runErr
	}

	if err := t.flush(waitCtx, out); err != nil {
		return err
	}
	if cfg.Metrics {
		return writeMetrics(out, reg)
	}
	return nil
}

func runWorkload(ctx context.Context, sched *tracepool.Scheduler, t tracer, cfg DemoConfig) error {
	unit := func(i int) tracepool.Callable {
		return tracepool.CallableFunc(func(ctx context.Context) (any, error) {
			_, finish := t.start(ctx, fmt.Sprintf("task-%d", i), tag{"task.index", strconv.Itoa(i)})
			defer finish()
			time.Sleep(time.Millisecond)
			return i, nil
		})
	}
	asRunnable := func(c tracepool.Callable) tracepool.Runnable {
		return tracepool.RunnableFunc(func(ctx context.Context) error {
			_, err := c.Call(ctx)
			return err
		})
	}

	switch cfg.Mode {
	case ModeExecute:
		// Execute has no future; units report on done instead.
		done := make(chan error, cfg.Tasks)
		for i := range cfg.Tasks {
			r := asRunnable(unit(i))
			err := sched.Execute(ctx, tracepool.RunnableFunc(func(ctx context.Context) error {
				err := r.Run(ctx)
				done <- err
				return err
			}))
			if err != nil {
				return err
			}
		}
		for range cfg.Tasks {
			if err := <-done; err != nil {
				return err
			}
		}
		return nil

	case ModeSubmit:
		futures := make([]tracepool.Future, 0, cfg.Tasks)
		for i := range cfg.Tasks {
			f, err := sched.Submit(ctx, unit(i))
			if err != nil {
				return err
			}
			futures = append(futures, f)
		}
		return waitAll(ctx, futures)

	case ModeInvokeAll:
		cs := make([]tracepool.Callable, cfg.Tasks)
		for i := range cs {
			cs[i] = unit(i)
		}
		futures, err := sched.InvokeAll(ctx, cs)
		if err != nil {
			return err
		}
		return waitAll(ctx, futures)

	case ModeInvokeAny:
		cs := make([]tracepool.Callable, cfg.Tasks)
		for i := range cs {
			cs[i] = unit(i)
		}
		_, err := sched.InvokeAny(ctx, cs)
		return err

	case ModeSchedule:
		futures := make([]tracepool.Future, 0, cfg.Tasks)
		for i := range cfg.Tasks {
			f, err := sched.ScheduleCallable(ctx, unit(i), time.Duration(i)*time.Millisecond)
			if err != nil {
				return err
			}
			futures = append(futures, f)
		}
		return waitAll(ctx, futures)

	case ModePeriodic:
		fired := make(chan struct{}, cfg.Firings)
		tick := tracepool.RunnableFunc(func(ctx context.Context) error {
			_, finish := t.start(ctx, "tick")
			finish()
			select {
			case fired <- struct{}{}:
			default:
			}
			return nil
		})
		f, err := sched.ScheduleAtFixedRate(ctx, tick, 0, cfg.Period)
		if err != nil {
			return err
		}
		defer f.Cancel()
		for range cfg.Firings {
			select {
			case <-fired:
			case <-time.After(10 * time.Second):
				return fmt.Errorf("periodic unit did not fire")
			}
		}
		return nil
	}
	return fmt.Errorf("unknown mode %q", cfg.Mode)
}

func waitAll(ctx context.Context, futures []tracepool.Future) error {
	for _, f := range futures {
		if _, err := f.Get(ctx); err != nil {
			return err
		}
	}
	return nil
}

func writeMetrics(out io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	fmt.Fprintln(out)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

// localTracer prints finished spans as an indented tree, and logs each one at
// debug level as it finishes.
type localTracer struct {
	t         *localtrace.Tracer
	collector *localtrace.Collector
	handlerID uint64
}

func newLocalTracer(refCounting bool, logger *slog.Logger) *localTracer {
	var opts []localtrace.Option
	if refCounting {
		opts = append(opts, localtrace.WithRefCounting())
	}
	t := localtrace.New(opts...)
	collector := localtrace.NewSyncCollector("demo")
	t.AddCollector("demo", collector)

	t.SetPanicHook(func(id uint64, r interface{}) {
		logger.Error("span handler panicked",
			slog.Uint64("handler", id),
			slog.Any("panic", r))
	})
	id := t.OnSpanComplete(func(s localtrace.Span) {
		logger.Debug("span finished",
			slog.String("name", s.Name),
			slog.String("trace", s.TraceID),
			slog.String("parent", s.ParentID),
			slog.Duration("duration", s.Duration))
	})
	return &localTracer{t: t, collector: collector, handlerID: id}
}

func (l *localTracer) start(ctx context.Context, name string, tags ...tag) (context.Context, func()) {
	ctx, span := l.t.StartSpan(ctx, name)
	for _, tg := range tags {
		span.SetTag(tg.key, tg.value)
	}
	return ctx, span.Finish
}

func (l *localTracer) backend() tracepool.Backend {
	return l.t.Backend()
}

func (l *localTracer) flush(_ context.Context, out io.Writer) error {
	spans := l.collector.Export()
	l.t.RemoveHandler(l.handlerID)
	l.t.Close()
	_, err := io.WriteString(out, renderTree(spans))
	return err
}

// renderTree prints spans as trees ordered by start time. A span whose
// parent did not finish is printed as a root.
func renderTree(spans []localtrace.Span) string {
	ids := make(map[string]bool, len(spans))
	for _, s := range spans {
		ids[s.SpanID] = true
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].StartTime.Before(spans[j].StartTime) })

	children := make(map[string][]localtrace.Span)
	var roots []localtrace.Span
	for _, s := range spans {
		if s.ParentID == "" || !ids[s.ParentID] {
			roots = append(roots, s)
			continue
		}
		children[s.ParentID] = append(children[s.ParentID], s)
	}

	var b strings.Builder
	var walk func(s localtrace.Span, depth int)
	walk = func(s localtrace.Span, depth int) {
		fmt.Fprintf(&b, "%s%s trace=%.8s span=%.8s", strings.Repeat("  ", depth), s.Name, s.TraceID, s.SpanID)
		keys := make([]string, 0, len(s.Tags))
		for k := range s.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, s.Tags[k])
		}
		b.WriteByte('\n')
		for _, c := range children[s.SpanID] {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return b.String()
}

// otelTracer exports spans through the OpenTelemetry stdout exporter.
type otelTracer struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
	b      *oteltrace.Backend
}

func newOtelTracer(out io.Writer) (*otelTracer, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	return &otelTracer{
		tp:     tp,
		tracer: tp.Tracer("tracepool-demo"),
		b:      oteltrace.New(oteltrace.WithTracerProvider(tp)),
	}, nil
}

func (o *otelTracer) start(ctx context.Context, name string, tags ...tag) (context.Context, func()) {
	attrs := make([]attribute.KeyValue, len(tags))
	for i, tg := range tags {
		attrs[i] = attribute.String(tg.key, tg.value)
	}
	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}

func (o *otelTracer) backend() tracepool.Backend {
	return o.b
}

func (o *otelTracer) flush(ctx context.Context, _ io.Writer) error {
	if err := o.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down tracer provider: %w", err)
	}
	return nil
}
