package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Refinery/internal/job"
	"github.com/shaiso/Refinery/internal/scheduler"
	"github.com/shaiso/Refinery/internal/sink"
)

// NewJobCmd создаёт группу команд для заданий очистки.
func NewJobCmd(appFn func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Run and schedule cleaning jobs",
	}

	cmd.AddCommand(
		newJobValidateCmd(appFn),
		newJobRunCmd(appFn),
		newJobScheduleCmd(appFn),
		newJobHistoryCmd(appFn),
	)

	return cmd
}

func newJobValidateCmd(appFn func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check job files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := appFn().Out

			jobs, err := job.LoadAll(args...)
			if err != nil {
				return err
			}

			now := time.Now()
			headers := []string{"NAME", "PROJECT", "STEPS", "SCHEDULE", "NEXT_RUN"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				next := ""
				if j.Schedule != "" {
					t, err := scheduler.NextRun(j.Schedule, now, time.Local)
					if err != nil {
						return err
					}
					next = t.Local().Format(time.RFC3339)
				}
				rows[i] = []string{j.Name, jobProject(j), strconv.Itoa(jobSteps(j)), j.Schedule, next}
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}
}

func newJobRunCmd(appFn func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE...",
		Short: "Run jobs once, in order",
		Long: `Run jobs once, in order.

A failed job does not stop the following ones; the command exits with
status 1 if any job failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFn()
			ctx := cmd.Context()

			jobs, err := job.LoadAll(args...)
			if err != nil {
				return err
			}

			runner, err := app.Runner(ctx)
			if err != nil {
				return err
			}

			results := make([]*job.Result, 0, len(jobs))
			var failed bool
			for _, j := range jobs {
				res, err := runner.Run(ctx, j)
				results = append(results, res)
				if err != nil {
					failed = true
					app.Out.Warn(fmt.Sprintf("Job %s failed: %v", j.Name, err))
				}
				if ctx.Err() != nil {
					break
				}
			}

			headers := []string{"JOB", "RUN_ID", "PROJECT", "STATUS", "OUTPUT", "DURATION"}
			rows := make([][]string, len(results))
			for i, r := range results {
				rows[i] = []string{
					r.Job, r.RunID.String(), r.ProjectID, r.Status, r.Output,
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
				}
			}
			app.Out.Print(headers, rows, results)

			if failed {
				return ErrReported
			}
			return nil
		},
	}
}

func newJobScheduleCmd(appFn func() *App) *cobra.Command {
	var listen string
	var leader bool
	var timezone string
	var tick time.Duration

	cmd := &cobra.Command{
		Use:   "schedule FILE...",
		Short: "Run jobs on their cron schedules until interrupted",
		Long: `Run jobs on their cron schedules until interrupted.

Jobs without a schedule are ignored. With --leader only the instance
holding the PostgreSQL advisory lock runs jobs. With --listen the
daemon serves /healthz, /metrics and /jobs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFn()
			ctx := cmd.Context()

			jobs, err := job.LoadAll(args...)
			if err != nil {
				return err
			}

			runner, err := app.Runner(ctx)
			if err != nil {
				return err
			}

			var entries []scheduler.Entry
			for _, j := range jobs {
				if j.Schedule == "" {
					app.Logger.Warn("job has no schedule, skipping", "job", j.Name)
					continue
				}
				entries = append(entries, scheduler.Entry{
					Name: j.Name,
					Spec: j.Schedule,
					Run: func(ctx context.Context) error {
						_, err := runner.Run(ctx, j)
						return err
					},
				})
			}
			if len(entries) == 0 {
				return errors.New("no scheduled jobs")
			}

			loc := time.Local
			if timezone != "" {
				if loc, err = time.LoadLocation(timezone); err != nil {
					return fmt.Errorf("load timezone: %w", err)
				}
			}

			cfg := scheduler.Config{
				Entries:      entries,
				Location:     loc,
				Logger:       app.Logger,
				TickInterval: tick,
			}
			if leader {
				pool, err := app.Postgres(ctx)
				if err != nil {
					return err
				}
				l := sink.NewLeader(pool, sink.SchedulerLockKey)
				defer l.Release(context.Background())
				cfg.Locker = l
			}

			s, err := scheduler.New(cfg)
			if err != nil {
				return err
			}

			if listen != "" {
				srv := &http.Server{
					Addr:              listen,
					Handler:           scheduler.Handler(s, app.Metrics.Registry),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					app.Logger.Info("listening", "addr", listen)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						app.Logger.Error("http server failed", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
			}

			for _, st := range s.Statuses() {
				app.Logger.Info("job scheduled", "job", st.Name, "spec", st.Spec, "next_run", st.NextRun)
			}
			return s.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Serve /healthz, /metrics and /jobs on this address, e.g. :8081")
	cmd.Flags().BoolVar(&leader, "leader", false, "Run jobs only while holding the PostgreSQL scheduler lock")
	cmd.Flags().StringVar(&timezone, "timezone", "", "Time zone of cron expressions (default: local)")
	cmd.Flags().DurationVar(&tick, "tick", time.Second, "How often schedules are checked")

	return cmd
}

func newJobHistoryCmd(appFn func() *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [JOB]",
		Short: "Show recorded job runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFn()
			ctx := cmd.Context()

			pool, err := app.Postgres(ctx)
			if err != nil {
				return err
			}

			var name string
			if len(args) == 1 {
				name = args[0]
			}

			runs, err := sink.NewRunLog(pool).List(ctx, name, limit)
			if err != nil {
				return err
			}

			headers := []string{"RUN_ID", "JOB", "PROJECT", "STATUS", "STARTED", "DURATION", "ERROR"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID.String(), r.Job, r.ProjectID, r.Status,
					r.StartedAt.Local().Format(time.DateTime),
					r.Duration().Round(time.Millisecond).String(),
					r.Error,
				}
			}

			app.Out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")

	return cmd
}

// jobProject описывает источник проекта задания.
func jobProject(j *job.Job) string {
	switch {
	case j.Project != "":
		return j.Project
	case j.Create.File != "":
		return "create: " + j.Create.File
	default:
		return "create: " + j.Create.URL
	}
}

// jobSteps считает шаги задания после открытия проекта.
func jobSteps(j *job.Job) int {
	n := len(j.Operations) + len(j.ClusterEdit)
	if len(j.RenameColumns) > 0 {
		n++
	}
	if j.Export != nil {
		n++
	}
	return n
}
