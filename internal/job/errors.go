package job

import "errors"

// Ошибки валидации задания.
var (
	// ErrMissingName — у задания нет имени.
	ErrMissingName = errors.New("job has no name")

	// ErrNoProject — не указаны ни project, ни create.
	ErrNoProject = errors.New("job needs project or create")

	// ErrProjectAndCreate — указаны одновременно project и create.
	ErrProjectAndCreate = errors.New("job has both project and create")

	// ErrNoSource — в create нет ни file, ни url.
	ErrNoSource = errors.New("create needs file or url")

	// ErrEmptyColumn — пустое имя колонки.
	ErrEmptyColumn = errors.New("empty column name")

	// ErrInvalidLimit — отрицательный limit в cluster_edit.
	ErrInvalidLimit = errors.New("negative cluster limit")

	// ErrEmptyExport — export без output и postgres_table.
	ErrEmptyExport = errors.New("export needs output or postgres_table")

	// ErrInvalidSchedule — некорректное cron-выражение.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrDuplicateJob — несколько заданий с одним именем.
	ErrDuplicateJob = errors.New("duplicate job name")
)

// Ошибки шаблонов.
var (
	// ErrTemplateParse — шаблон не разбирается.
	ErrTemplateParse = errors.New("template parse failed")

	// ErrTemplateRender — ошибка выполнения шаблона.
	ErrTemplateRender = errors.New("template render failed")
)

// ErrApplyFailed — сервер не подтвердил применение операций.
var ErrApplyFailed = errors.New("operations not applied")

// ValidationError — ошибка валидации с указанием поля.
type ValidationError struct {
	Job     string // имя задания
	Field   string // поле, вызвавшее ошибку
	Message string
	Err     error // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Job != "" {
		return "job " + e.Job + ": " + e.Field + ": " + e.Message
	}
	return e.Field + ": " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(job, field, message string, err error) *ValidationError {
	return &ValidationError{Job: job, Field: field, Message: message, Err: err}
}

// StepError — ошибка шага при выполнении задания.
type StepError struct {
	Step string // create, open, rename, operations, cluster_edit, export
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}
