package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/forkjoin/internal/config"
	"github.com/vnykmshr/forkjoin/pkg/forkjoin"
)

type rootOptions struct {
	v          *viper.Viper
	configFile string
	stats      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "forkjoin",
		Short: "Run divide-and-conquer workloads on a work-stealing pool",
		Long: `forkjoin runs recursive workloads on a fixed pool of workers that
split work with fork and join and balance it by stealing.

Pool settings come from flags, FORKJOIN_* environment variables and an
optional config file (forkjoin.yaml in the working directory by default).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.BindFlags(opts.v, cmd.Flags())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (default is ./forkjoin.yaml)")
	flags.IntP("parallelism", "p", 0, "number of workers (default GOMAXPROCS)")
	flags.Int("inlet-capacity", 0, "capacity of the external submission queue")
	flags.String("inlet-strategy", "block", `what Submit does when the inlet is full: "block" or "error"`)
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.Bool("log-json", false, "log in JSON")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	flags.BoolVar(&opts.stats, "stats", false, "print pool statistics on exit")

	cmd.AddCommand(
		newSumCmd(opts),
		newFibCmd(opts),
		newFactorialCmd(opts),
		newPeriodicCmd(opts),
	)
	return cmd
}

// withPool builds a pool from the loaded configuration, runs fn on it and
// shuts the pool down afterwards. The metrics endpoint, when configured,
// is served for as long as fn runs.
func (o *rootOptions) withPool(cmd *cobra.Command, fn func(ctx context.Context, pool *forkjoin.Pool) error) error {
	c, err := config.Load(o.v, o.configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := c.Logger(cmd.ErrOrStderr())
	poolConfig, err := c.PoolConfig(logger)
	if err != nil {
		return err
	}
	pool, err := forkjoin.NewWithConfig(poolConfig)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if c.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: c.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Info("serving metrics", "addr", c.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return fn(gctx, pool)
	})

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		<-pool.ShutdownNow()
	} else {
		<-pool.Shutdown()
	}

	if o.stats {
		printStats(cmd, pool.Stats())
	}
	return runErr
}

func printStats(cmd *cobra.Command, s forkjoin.Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "workers:   %d\n", s.Parallelism)
	fmt.Fprintf(out, "submitted: %d\n", s.Submitted)
	fmt.Fprintf(out, "forked:    %d\n", s.Forked)
	fmt.Fprintf(out, "executed:  %d (stolen %d)\n", s.Executed, s.Stolen)
	fmt.Fprintf(out, "failed:    %d\n", s.Failed)
	fmt.Fprintf(out, "cancelled: %d\n", s.Cancelled)
}
