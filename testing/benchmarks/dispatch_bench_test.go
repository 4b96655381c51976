package benchmarks

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/zoobzio/tracepool"
	"github.com/zoobzio/tracepool/localtrace"
	"github.com/zoobzio/tracepool/oteltrace"
	"github.com/zoobzio/tracepool/workpool"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var noop = tracepool.RunnableFunc(func(context.Context) error { return nil })

// BenchmarkSubmit compares bare pool submission with decorated submission.
func BenchmarkSubmit(b *testing.B) {
	tracer := localtrace.New()
	defer tracer.Close()
	ctx, span := tracer.StartSpan(context.Background(), "bench")
	defer span.Finish()

	cases := []struct {
		name string
		pool func(*workpool.Pool) tracepool.ExecutorService
	}{
		{"bare", func(p *workpool.Pool) tracepool.ExecutorService { return p }},
		{"localtrace", func(p *workpool.Pool) tracepool.ExecutorService {
			return tracepool.NewPool(p, tracer.Backend())
		}},
		{"localtrace-refcounted", func(p *workpool.Pool) tracepool.ExecutorService {
			rc := localtrace.New(localtrace.WithRefCounting())
			b.Cleanup(rc.Close)
			return tracepool.NewPool(p, rc.Backend())
		}},
	}

	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			workers := workpool.New(4, workpool.WithQueueSize(1024))
			defer workers.ShutdownNow()
			pool := tc.pool(workers)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				f, err := pool.SubmitRunnable(ctx, noop, nil)
				if err != nil {
					b.Fatal(err)
				}
				if _, err := f.Get(context.Background()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSubmitOtel measures decorated submission over the OpenTelemetry SDK.
func BenchmarkSubmitOtel(b *testing.B) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("bench").Start(context.Background(), "bench")
	defer span.End()

	workers := workpool.New(4, workpool.WithQueueSize(1024))
	defer workers.ShutdownNow()
	pool := tracepool.NewPool(workers, oteltrace.New(oteltrace.WithTracerProvider(tp)))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f, err := pool.SubmitRunnable(ctx, noop, nil)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := f.Get(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkInvokeAll measures batch wrapping at several batch sizes.
func BenchmarkInvokeAll(b *testing.B) {
	tracer := localtrace.New()
	defer tracer.Close()
	ctx, span := tracer.StartSpan(context.Background(), "bench")
	defer span.Finish()

	for _, size := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("batch-%d", size), func(b *testing.B) {
			workers := workpool.New(8, workpool.WithQueueSize(size*2))
			defer workers.ShutdownNow()
			pool := tracepool.NewPool(workers, tracer.Backend())

			cs := make([]tracepool.Callable, size)
			for i := range cs {
				cs[i] = tracepool.CallableFunc(func(context.Context) (any, error) { return nil, nil })
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := pool.InvokeAll(ctx, cs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkConcurrentSubmitters measures contention on one decorated pool.
func BenchmarkConcurrentSubmitters(b *testing.B) {
	tracer := localtrace.New()
	defer tracer.Close()

	for _, submitters := range []int{1, 10, 50} {
		b.Run(fmt.Sprintf("submitters-%d", submitters), func(b *testing.B) {
			workers := workpool.New(8, workpool.WithQueueSize(1024))
			defer workers.ShutdownNow()
			d := tracepool.NewDispatcher(workers, tracer.Backend())

			perSubmitter := b.N / submitters
			if perSubmitter == 0 {
				perSubmitter = 1
			}

			var done sync.WaitGroup
			done.Add(perSubmitter * submitters)
			unit := tracepool.RunnableFunc(func(context.Context) error {
				done.Done()
				return nil
			})

			b.ResetTimer()
			var wg sync.WaitGroup
			for s := 0; s < submitters; s++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ctx, span := tracer.StartSpan(context.Background(), "submitter")
					defer span.Finish()
					for j := 0; j < perSubmitter; j++ {
						if err := d.Execute(ctx, unit); err != nil {
							b.Error(err)
							done.Done()
						}
					}
				}()
			}
			wg.Wait()
			done.Wait()
		})
	}
}
