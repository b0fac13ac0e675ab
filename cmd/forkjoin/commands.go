package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/forkjoin/pkg/common/validation"
	"github.com/vnykmshr/forkjoin/pkg/forkjoin"
	"github.com/vnykmshr/forkjoin/pkg/periodic"
)

// maxFactorial is the largest n whose factorial fits in an int64.
const maxFactorial = 20

func newSumCmd(opts *rootOptions) *cobra.Command {
	var n, threshold int64

	cmd := &cobra.Command{
		Use:   "sum",
		Short: "Sum the integers 1..n by recursive splitting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidatePositive("sum", "n", n); err != nil {
				return err
			}
			if err := validation.ValidatePositive("sum", "threshold", threshold); err != nil {
				return err
			}
			return opts.withPool(cmd, func(ctx context.Context, pool *forkjoin.Pool) error {
				total, err := forkjoin.InvokeOn[int64](ctx, pool, sumRange{lo: 1, hi: n, threshold: threshold})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), total)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&n, "n", 1_000_000, "upper bound of the range")
	cmd.Flags().Int64Var(&threshold, "threshold", 1000, "largest range summed without splitting")
	return cmd
}

func newFibCmd(opts *rootOptions) *cobra.Command {
	var n, cutoff int

	cmd := &cobra.Command{
		Use:   "fib",
		Short: "Compute a Fibonacci number with naive recursive forking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidateNonNegative("fib", "n", n); err != nil {
				return err
			}
			if err := validation.ValidateAtMost("fib", "n", n, 92); err != nil {
				return err
			}
			return opts.withPool(cmd, func(ctx context.Context, pool *forkjoin.Pool) error {
				v, err := forkjoin.InvokeOn[int64](ctx, pool, fibonacci{n: n, cutoff: cutoff})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 30, "index of the Fibonacci number")
	cmd.Flags().IntVar(&cutoff, "cutoff", 12, "compute sequentially at or below this index")
	return cmd
}

func newFactorialCmd(opts *rootOptions) *cobra.Command {
	var n int64

	cmd := &cobra.Command{
		Use:   "factorial",
		Short: "Compute n! by splitting the product range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidatePositive("factorial", "n", n); err != nil {
				return err
			}
			if err := validation.ValidateAtMost("factorial", "n", n, maxFactorial); err != nil {
				return err
			}
			return opts.withPool(cmd, func(ctx context.Context, pool *forkjoin.Pool) error {
				v, err := forkjoin.InvokeOn[int64](ctx, pool, product{lo: 1, hi: n})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&n, "n", maxFactorial, "factorial argument (at most 20)")
	return cmd
}

func newPeriodicCmd(opts *rootOptions) *cobra.Command {
	var (
		every time.Duration
		cron  string
		runs  int
		n     int64
	)

	cmd := &cobra.Command{
		Use:   "periodic",
		Short: "Run the sum workload repeatedly on a schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidatePositive("periodic", "runs", runs); err != nil {
				return err
			}
			return opts.withPool(cmd, func(ctx context.Context, pool *forkjoin.Pool) error {
				s, err := periodic.NewWithConfig(periodic.Config{
					Pool:         pool,
					Name:         "cli",
					TickInterval: 10 * time.Millisecond,
				})
				if err != nil {
					return err
				}
				defer func() { <-s.Stop() }()

				var (
					completed atomic.Int32
					outMu     sync.Mutex
				)
				finished := make(chan struct{})
				job := periodic.JobFunc(func(ctx context.Context) error {
					total, err := sumRange{lo: 1, hi: n, threshold: 1000}.Execute(ctx)
					if err != nil {
						return err
					}
					run := completed.Add(1)
					outMu.Lock()
					fmt.Fprintf(cmd.OutOrStdout(), "run %d: %d\n", run, total)
					outMu.Unlock()
					if int(run) == runs {
						close(finished)
					}
					return nil
				})

				if cron != "" {
					err = s.ScheduleCron("sum", cron, job)
				} else {
					err = s.ScheduleRepeating("sum", job, every)
				}
				if err != nil {
					return err
				}
				if err := s.Start(); err != nil {
					return err
				}

				select {
				case <-finished:
					s.Cancel("sum")
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		},
	}
	cmd.Flags().DurationVar(&every, "every", time.Second, "interval between runs")
	cmd.Flags().StringVar(&cron, "cron", "", "cron expression; overrides --every")
	cmd.Flags().IntVar(&runs, "runs", 3, "stop after this many completed runs")
	cmd.Flags().Int64Var(&n, "n", 100_000, "upper bound of each sum")
	return cmd
}
