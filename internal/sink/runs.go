package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Статусы запуска задания.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// JobRun — один запуск задания.
type JobRun struct {
	ID         uuid.UUID `json:"id"`
	Job        string    `json:"job"`
	ProjectID  string    `json:"project_id,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration возвращает длительность запуска.
func (r JobRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

const runsSchema = `
	CREATE TABLE IF NOT EXISTS refinery_job_runs (
		id          uuid PRIMARY KEY,
		job         text NOT NULL,
		project_id  text,
		status      text NOT NULL,
		error       text,
		started_at  timestamptz NOT NULL,
		finished_at timestamptz NOT NULL
	)
`

// RunLog — история запусков заданий в таблице refinery_job_runs.
type RunLog struct {
	db DB
}

// NewRunLog создаёт RunLog.
func NewRunLog(db DB) *RunLog {
	return &RunLog{db: db}
}

// EnsureSchema создаёт таблицу истории, если её нет.
func (l *RunLog) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, runsSchema); err != nil {
		return fmt.Errorf("create refinery_job_runs: %w", err)
	}
	return nil
}

// Record сохраняет запуск.
func (l *RunLog) Record(ctx context.Context, run JobRun) error {
	query := `
		INSERT INTO refinery_job_runs (id, job, project_id, status, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := l.db.Exec(ctx, query,
		run.ID,
		run.Job,
		nullString(run.ProjectID),
		run.Status,
		nullString(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job run: %w", err)
	}
	return nil
}

// List возвращает последние запуски, новые первыми.
// Пустой job — все задания; limit <= 0 — 20.
func (l *RunLog) List(ctx context.Context, job string, limit int) ([]JobRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, job, project_id, status, error, started_at, finished_at
		FROM refinery_job_runs
		WHERE ($1::text IS NULL OR job = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := l.db.Query(ctx, query, nullString(job), limit)
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanJobRun(row pgx.Row) (JobRun, error) {
	var run JobRun
	var projectID, runError *string

	err := row.Scan(
		&run.ID,
		&run.Job,
		&projectID,
		&run.Status,
		&runError,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return JobRun{}, fmt.Errorf("scan job run: %w", err)
	}

	if projectID != nil {
		run.ProjectID = *projectID
	}
	if runError != nil {
		run.Error = *runError
	}
	return run, nil
}

// nullString возвращает nil для пустой строки (NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
