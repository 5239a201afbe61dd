package job

import (
	"fmt"

	"github.com/shaiso/Refinery/internal/scheduler"
)

// Validate проверяет задание. Возвращает *ValidationError для первой
// найденной проблемы.
func (j *Job) Validate() error {
	if j.Name == "" {
		return newValidationError("", "name", "job has no name", ErrMissingName)
	}

	switch {
	case j.Project == "" && j.Create == nil:
		return newValidationError(j.Name, "project", "neither project nor create is set", ErrNoProject)
	case j.Project != "" && j.Create != nil:
		return newValidationError(j.Name, "project", "project and create are mutually exclusive", ErrProjectAndCreate)
	}

	if c := j.Create; c != nil {
		if c.File == "" && c.URL == "" {
			return newValidationError(j.Name, "create", "no file or url", ErrNoSource)
		}
	}

	for i, r := range j.RenameColumns {
		if r.From == "" || r.To == "" {
			return newValidationError(j.Name, fmt.Sprintf("rename_columns[%d]", i),
				"empty column name", ErrEmptyColumn)
		}
	}

	for i, op := range j.Operations {
		if op == "" {
			return newValidationError(j.Name, fmt.Sprintf("operations[%d]", i),
				"empty operations file", ErrNoSource)
		}
	}

	for i, c := range j.ClusterEdit {
		field := fmt.Sprintf("cluster_edit[%d]", i)
		if c.Column == "" {
			return newValidationError(j.Name, field, "empty column name", ErrEmptyColumn)
		}
		if c.Limit < 0 {
			return newValidationError(j.Name, field, fmt.Sprintf("limit %d", c.Limit), ErrInvalidLimit)
		}
	}

	if e := j.Export; e != nil && e.Output == "" && e.PostgresTable == "" {
		return newValidationError(j.Name, "export", "nothing to export to", ErrEmptyExport)
	}

	if j.Schedule != "" {
		if err := scheduler.ValidateCronExpr(j.Schedule); err != nil {
			return newValidationError(j.Name, "schedule", err.Error(), ErrInvalidSchedule)
		}
	}

	return nil
}
