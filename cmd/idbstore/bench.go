package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nainya/idbstore/internal/server"
	"github.com/nainya/idbstore/pkg/idb"
	"github.com/nainya/idbstore/pkg/keyval"
	"github.com/nainya/idbstore/pkg/value"
)

type benchOptions struct {
	ops     int
	batch   int
	workers int
	hold    bool
}

var benchOpts benchOptions

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a put/get workload against a fresh engine",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		f := newFactory(reg)

		if cfg.MetricsAddr != "" {
			srv := server.NewObservabilityServer(cfg.MetricsAddr, reg, f, log)
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("observability server").Err(err).Send()
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		if err := runBench(ctx, f, benchOpts, cmd.OutOrStdout()); err != nil {
			return err
		}
		if benchOpts.hold && cfg.MetricsAddr != "" {
			fmt.Fprintln(cmd.OutOrStdout(), "serving metrics, interrupt to exit")
			<-ctx.Done()
		}
		return nil
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchOpts.ops, "ops", 10000, "records written and read per worker")
	benchCmd.Flags().IntVar(&benchOpts.batch, "batch", 100, "records per write transaction")
	benchCmd.Flags().IntVar(&benchOpts.workers, "workers", 4, "concurrent workers, each on its own database")
	benchCmd.Flags().BoolVar(&benchOpts.hold, "hold", false, "keep serving metrics after the run")
}

type phase struct {
	name string
	ops  int
	took time.Duration
}

func (p phase) String() string {
	rate := float64(p.ops) / p.took.Seconds()
	return fmt.Sprintf("%-6s %8d ops in %-12s %10.0f ops/s", p.name, p.ops, p.took.Round(time.Microsecond), rate)
}

// runBench gives every worker its own database, so their transactions
// never wait on each other's locks.
func runBench(ctx context.Context, f *idb.Factory, opts benchOptions, out io.Writer) error {
	if opts.ops <= 0 || opts.batch <= 0 || opts.workers <= 0 {
		return fmt.Errorf("ops, batch and workers must be positive")
	}

	stores := make([]*keyval.Store, opts.workers)
	for i := range stores {
		s, err := keyval.Open(ctx, f, "bench-"+strconv.Itoa(i), "records")
		if err != nil {
			return err
		}
		stores[i] = s
	}
	defer func() {
		for _, s := range stores {
			s.Close()
		}
	}()

	var phases []phase
	measure := func(name string, fn func(s *keyval.Store) error) error {
		start := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		for _, s := range stores {
			s := s
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return fn(s)
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		phases = append(phases, phase{name: name, ops: opts.ops * opts.workers, took: time.Since(start)})
		return nil
	}

	err := measure("put", func(s *keyval.Store) error {
		batch := make(map[string]value.Value, opts.batch)
		for i := 0; i < opts.ops; i++ {
			batch[benchKey(i)] = value.ObjectOf("n", value.Number(i), "tag", value.String("bench"))
			if len(batch) == opts.batch || i == opts.ops-1 {
				if err := s.SetMany(ctx, batch); err != nil {
					return err
				}
				clear(batch)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = measure("get", func(s *keyval.Store) error {
		for i := 0; i < opts.ops; i++ {
			v, err := s.Get(ctx, benchKey(i))
			if err != nil {
				return err
			}
			if v == nil {
				return fmt.Errorf("key %s missing", benchKey(i))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range phases {
		fmt.Fprintln(out, p)
	}
	return nil
}

func benchKey(i int) string {
	return fmt.Sprintf("k%08d", i)
}
