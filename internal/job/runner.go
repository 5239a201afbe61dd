package job

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Refinery/internal/export"
	"github.com/shaiso/Refinery/internal/mq"
	"github.com/shaiso/Refinery/internal/refine"
	"github.com/shaiso/Refinery/internal/sink"
	"github.com/shaiso/Refinery/internal/telemetry"
)

// Publisher публикует события запуска (реализуется *mq.Publisher).
type Publisher interface {
	PublishEvent(ctx context.Context, key mq.RoutingKey, payload any) error
}

// Loader загружает tsv-экспорт в таблицу (реализуется *sink.Sink).
type Loader interface {
	LoadTSV(ctx context.Context, table string, r io.Reader, opts sink.LoadOptions) (int64, error)
}

// Recorder сохраняет историю запусков (реализуется *sink.RunLog).
type Recorder interface {
	Record(ctx context.Context, run sink.JobRun) error
}

// Config — зависимости Runner. Всё, кроме Refine, опционально.
type Config struct {
	Refine    *refine.Refine
	Publisher Publisher
	Loader    Loader
	Runs      Recorder
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
	// Now — источник времени; по умолчанию time.Now.
	Now func() time.Time
}

// Runner выполняет задания.
type Runner struct {
	refine    *refine.Refine
	publisher Publisher
	loader    Loader
	runs      Recorder
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner создаёт Runner.
func NewRunner(cfg Config) *Runner {
	r := &Runner{
		refine:    cfg.Refine,
		publisher: cfg.Publisher,
		loader:    cfg.Loader,
		runs:      cfg.Runs,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// ClusterResult — итог одного шага cluster_edit.
type ClusterResult struct {
	Column   string `json:"column"`
	Clusters int    `json:"clusters"`
	Edits    int    `json:"edits"`
}

// Result — итог запуска.
type Result struct {
	RunID      uuid.UUID       `json:"run_id"`
	Job        string          `json:"job"`
	ProjectID  string          `json:"project_id,omitempty"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Renamed    int             `json:"renamed"`
	Applied    []string        `json:"applied,omitempty"`
	Clusters   []ClusterResult `json:"clusters,omitempty"`
	Output     string          `json:"output,omitempty"`
	RowsLoaded int64           `json:"rows_loaded,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Run выполняет задание. Ошибка шага прерывает запуск; Result заполнен
// и при ошибке. Запись истории, метрики и событие job.finished
// выполняются в любом случае, их сбои только логируются.
func (r *Runner) Run(ctx context.Context, j *Job) (*Result, error) {
	started := r.now()
	res := &Result{
		RunID:     uuid.New(),
		Job:       j.Name,
		StartedAt: started,
	}
	logger := telemetry.WithJobRunID(r.logger, j.Name, res.RunID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	logger.Info("job started")
	err := r.run(ctx, j, res)

	res.FinishedAt = r.now()
	res.Status = sink.RunSucceeded
	if err != nil {
		res.Status = sink.RunFailed
		res.Error = err.Error()
		logger.Error("job failed", "error", err)
	} else {
		logger.Info("job finished", "project_id", res.ProjectID, "duration", res.FinishedAt.Sub(started))
	}

	r.finish(ctx, res, err)
	return res, err
}

func (r *Runner) run(ctx context.Context, j *Job, res *Result) error {
	j, err := j.Rendered(NewRenderContext(j.Name, res.RunID.String(), res.StartedAt))
	if err != nil {
		return &StepError{Step: "render", Err: err}
	}

	p, err := r.openProject(ctx, j, res)
	if err != nil {
		return err
	}
	res.ProjectID = p.ID
	logger := telemetry.WithProjectID(telemetry.FromContext(ctx), p.ID)

	for _, rn := range j.RenameColumns {
		if _, err := p.RenameColumn(ctx, rn.From, rn.To); err != nil {
			return &StepError{Step: "rename", Err: fmt.Errorf("%s -> %s: %w", rn.From, rn.To, err)}
		}
		res.Renamed++
	}

	for _, ops := range j.Operations {
		path := j.Resolve(ops)
		code, err := p.ApplyOperations(ctx, path, true)
		if err != nil {
			return &StepError{Step: "operations", Err: err}
		}
		if code != "ok" {
			return &StepError{Step: "operations", Err: fmt.Errorf("%s: %w: %q", path, ErrApplyFailed, code)}
		}
		logger.Info("operations applied", "file", path)
		res.Applied = append(res.Applied, ops)
		r.publish(ctx, mq.RoutingKeyOperationsApplied, r.projectEvent(p, res, path))
	}

	for _, c := range j.ClusterEdit {
		opts := refine.ClusterOptions{Type: c.Type, Function: c.Function}
		ce, err := p.ClusterEdit(ctx, c.Column, opts, c.Limit)
		if err != nil {
			return &StepError{Step: "cluster_edit", Err: fmt.Errorf("column %s: %w", c.Column, err)}
		}
		logger.Info("clusters merged", "column", c.Column, "clusters", ce.Clusters, "edits", len(ce.Edits))
		res.Clusters = append(res.Clusters, ClusterResult{Column: c.Column, Clusters: ce.Clusters, Edits: len(ce.Edits)})
	}

	if j.Export != nil {
		if err := r.export(ctx, j, p, res); err != nil {
			return &StepError{Step: "export", Err: err}
		}
	}

	return nil
}

func (r *Runner) openProject(ctx context.Context, j *Job, res *Result) (*refine.Project, error) {
	if j.Create == nil {
		p, err := r.refine.OpenProject(ctx, j.Project)
		if err != nil {
			return nil, &StepError{Step: "open", Err: err}
		}
		return p, nil
	}

	opts := refine.DefaultNewProjectOptions()
	j.Create.apply(&opts)
	opts.File = j.Resolve(j.Create.File)

	p, err := r.refine.NewProject(ctx, opts)
	if err != nil {
		return nil, &StepError{Step: "create", Err: err}
	}
	r.publish(ctx, mq.RoutingKeyProjectCreated, r.projectEvent(p, res, firstNonEmpty(opts.Name, opts.File, opts.URL)))
	return p, nil
}

func (r *Runner) export(ctx context.Context, j *Job, p *refine.Project, res *Result) error {
	e := j.Export

	if e.Output != "" {
		path := j.Resolve(e.Output)
		format, _ := export.Format(path)

		rc, err := p.Export(ctx, format)
		if err != nil {
			return err
		}
		_, err = export.WriteFile(path, rc)
		rc.Close()
		if err != nil {
			return err
		}

		res.Output = path
		r.publish(ctx, mq.RoutingKeyProjectExported, r.projectEvent(p, res, path))
	}

	if e.PostgresTable != "" {
		if r.loader == nil {
			return fmt.Errorf("postgres_table %s: no postgres_dsn configured", e.PostgresTable)
		}

		rc, err := p.Export(ctx, export.DefaultFormat)
		if err != nil {
			return err
		}
		n, err := r.loader.LoadTSV(ctx, e.PostgresTable, rc, sink.LoadOptions{Truncate: e.Truncate})
		rc.Close()
		if err != nil {
			return err
		}

		res.RowsLoaded = n
		r.publish(ctx, mq.RoutingKeyProjectExported, r.projectEvent(p, res, "postgres:"+e.PostgresTable))
	}

	return nil
}

// finish пишет историю, метрики и событие job.finished.
func (r *Runner) finish(ctx context.Context, res *Result, runErr error) {
	r.metrics.ObserveJobRun(res.Job, runErr)

	if r.runs != nil {
		run := sink.JobRun{
			ID:         res.RunID,
			Job:        res.Job,
			ProjectID:  res.ProjectID,
			Status:     res.Status,
			Error:      res.Error,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
		}
		if err := r.runs.Record(ctx, run); err != nil {
			telemetry.FromContext(ctx).Warn("failed to record job run", "error", err)
		}
	}

	r.publish(ctx, mq.RoutingKeyJobFinished, mq.JobFinished{
		Job:        res.Job,
		RunID:      res.RunID.String(),
		ProjectID:  res.ProjectID,
		Status:     res.Status,
		Error:      res.Error,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	})
}

func (r *Runner) projectEvent(p *refine.Project, res *Result, detail string) mq.ProjectEvent {
	return mq.ProjectEvent{
		ProjectID: p.ID,
		Server:    p.Server().URL(),
		Job:       res.Job,
		RunID:     res.RunID.String(),
		Detail:    detail,
	}
}

// publish отправляет событие, если publisher настроен. Ошибка только
// логируется.
func (r *Runner) publish(ctx context.Context, key mq.RoutingKey, payload any) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishEvent(ctx, key, payload); err != nil {
		telemetry.FromContext(ctx).Warn("failed to publish event", "routing_key", key, "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
