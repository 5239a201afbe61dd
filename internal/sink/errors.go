package sink

import "errors"

var (
	// ErrEmptyInput — во входных данных нет даже заголовка.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidTable — имя таблицы пустое или из более чем двух частей.
	ErrInvalidTable = errors.New("invalid table name")

	// ErrDuplicateColumn — в заголовке повторяется имя колонки.
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrRowTooWide — в строке больше ячеек, чем колонок в заголовке.
	ErrRowTooWide = errors.New("row has more cells than header")
)
