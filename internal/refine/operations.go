package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Значения on-error для операций с выражениями.
const (
	OnErrorSetToBlank   = "set-to-blank"
	OnErrorKeepOriginal = "keep-original"
	OnErrorStoreError   = "store-error"
)

// Edit — одна правка mass-edit: значения From заменяются на To.
type Edit struct {
	From      []string `json:"from"`
	FromBlank bool     `json:"fromBlank"`
	FromError bool     `json:"fromError"`
	To        string   `json:"to"`
}

// TextTransformOptions — параметры TextTransform.
type TextTransformOptions struct {
	OnError     string // по умолчанию set-to-blank
	Repeat      bool
	RepeatCount int // по умолчанию 10
}

// TextTransform применяет GREL-выражение к ячейкам колонки.
func (p *Project) TextTransform(ctx context.Context, column, expression string, opts TextTransformOptions) (*Status, error) {
	if opts.OnError == "" {
		opts.OnError = OnErrorSetToBlank
	}
	if opts.RepeatCount <= 0 {
		opts.RepeatCount = 10
	}

	return p.statusCommand(ctx, "text-transform", url.Values{
		"columnName":  {column},
		"expression":  {expression},
		"onError":     {opts.OnError},
		"repeat":      {strconv.FormatBool(opts.Repeat)},
		"repeatCount": {strconv.Itoa(opts.RepeatCount)},
	})
}

// Edit заменяет значения from на to в колонке.
func (p *Project) Edit(ctx context.Context, column string, from []string, to string) (*Status, error) {
	return p.MassEdit(ctx, column, []Edit{{From: from, To: to}}, "")
}

// MassEdit применяет набор правок к колонке. Пустое expression — "value".
func (p *Project) MassEdit(ctx context.Context, column string, edits []Edit, expression string) (*Status, error) {
	if expression == "" {
		expression = "value"
	}
	if edits == nil {
		edits = []Edit{}
	}

	encoded, err := json.Marshal(edits)
	if err != nil {
		return nil, fmt.Errorf("marshal edits: %w", err)
	}

	return p.statusCommand(ctx, "mass-edit", url.Values{
		"columnName": {column},
		"expression": {expression},
		"edits":      {string(encoded)},
	})
}

// AddColumnOptions — параметры AddColumn.
type AddColumnOptions struct {
	Expression string // по умолчанию "value"
	// InsertIndex — позиция новой колонки; nil — сразу после исходной.
	InsertIndex *int
	OnError     string // по умолчанию set-to-blank
}

// AddColumn добавляет колонку, вычисленную из column.
func (p *Project) AddColumn(ctx context.Context, column, newColumn string, opts AddColumnOptions) (*Status, error) {
	if opts.Expression == "" {
		opts.Expression = "value"
	}
	if opts.OnError == "" {
		opts.OnError = OnErrorSetToBlank
	}

	var index int
	if opts.InsertIndex != nil {
		index = *opts.InsertIndex
	} else {
		pos, ok := p.ColumnOrder[column]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
		}
		index = pos + 1
	}

	return p.modelCommand(ctx, "add-column", url.Values{
		"baseColumnName":    {column},
		"newColumnName":     {newColumn},
		"expression":        {opts.Expression},
		"columnInsertIndex": {strconv.Itoa(index)},
		"onError":           {opts.OnError},
	})
}

// SplitColumnOptions — параметры SplitColumn.
//
// Используйте DefaultSplitColumnOptions: у нулевых значений флаги
// GuessCellType и RemoveOriginalColumn выключены.
type SplitColumnOptions struct {
	Separator string // по умолчанию ","
	// Mode — separator или lengths.
	Mode                 string
	Regex                bool
	GuessCellType        bool
	RemoveOriginalColumn bool
}

// DefaultSplitColumnOptions возвращает параметры разбиения по умолчанию.
func DefaultSplitColumnOptions() SplitColumnOptions {
	return SplitColumnOptions{
		Separator:            ",",
		Mode:                 "separator",
		GuessCellType:        true,
		RemoveOriginalColumn: true,
	}
}

// SplitColumn разбивает колонку на несколько.
func (p *Project) SplitColumn(ctx context.Context, column string, opts SplitColumnOptions) (*Status, error) {
	if opts.Separator == "" {
		opts.Separator = ","
	}
	if opts.Mode == "" {
		opts.Mode = "separator"
	}

	return p.modelCommand(ctx, "split-column", url.Values{
		"columnName":           {column},
		"separator":            {opts.Separator},
		"mode":                 {opts.Mode},
		"regex":                {strconv.FormatBool(opts.Regex)},
		"guessCellType":        {strconv.FormatBool(opts.GuessCellType)},
		"removeOriginalColumn": {strconv.FormatBool(opts.RemoveOriginalColumn)},
	})
}

// RenameColumn переименовывает колонку.
func (p *Project) RenameColumn(ctx context.Context, column, newColumn string) (*Status, error) {
	return p.modelCommand(ctx, "rename-column", url.Values{
		"oldColumnName": {column},
		"newColumnName": {newColumn},
	})
}

// ReorderColumns задаёт новый порядок колонок. Колонки вне списка удаляются.
func (p *Project) ReorderColumns(ctx context.Context, columns []string) (*Status, error) {
	encoded, err := json.Marshal(columns)
	if err != nil {
		return nil, fmt.Errorf("marshal columns: %w", err)
	}
	return p.modelCommand(ctx, "reorder-columns", url.Values{
		"columnNames": {string(encoded)},
	})
}

// MoveToEnd — индекс MoveColumn, означающий последнюю позицию.
const MoveToEnd = -1

// MoveColumn перемещает колонку на позицию index (MoveToEnd — в конец).
func (p *Project) MoveColumn(ctx context.Context, column string, index int) (*Status, error) {
	if index == MoveToEnd {
		index = len(p.Columns) - 1
	}
	return p.modelCommand(ctx, "move-column", url.Values{
		"columnName": {column},
		"index":      {strconv.Itoa(index)},
	})
}

// BlankDown очищает повторяющиеся значения подряд идущих ячеек.
func (p *Project) BlankDown(ctx context.Context, column string) (*Status, error) {
	return p.statusCommand(ctx, "blank-down", url.Values{"columnName": {column}})
}

// FillDown заполняет пустые ячейки значением сверху.
func (p *Project) FillDown(ctx context.Context, column string) (*Status, error) {
	return p.statusCommand(ctx, "fill-down", url.Values{"columnName": {column}})
}

// TransposeOptions — параметры TransposeColumnsIntoRows.
//
// Используйте DefaultTransposeOptions: у нулевых значений флаги
// PrependColumnName и IgnoreBlankCells выключены.
type TransposeOptions struct {
	Separator         string // по умолчанию ":"
	PrependColumnName bool
	IgnoreBlankCells  bool
}

// DefaultTransposeOptions возвращает параметры свёртки по умолчанию.
func DefaultTransposeOptions() TransposeOptions {
	return TransposeOptions{
		Separator:         ":",
		PrependColumnName: true,
		IgnoreBlankCells:  true,
	}
}

// TransposeColumnsIntoRows сворачивает columnCount колонок, начиная со
// startColumn, в одну колонку combinedColumn.
func (p *Project) TransposeColumnsIntoRows(ctx context.Context, startColumn string, columnCount int, combinedColumn string, opts TransposeOptions) (*Status, error) {
	if opts.Separator == "" {
		opts.Separator = ":"
	}
	return p.modelCommand(ctx, "transpose-columns-into-rows", url.Values{
		"startColumnName":    {startColumn},
		"columnCount":        {strconv.Itoa(columnCount)},
		"combinedColumnName": {combinedColumn},
		"separator":          {opts.Separator},
		"prependColumnName":  {strconv.FormatBool(opts.PrependColumnName)},
		"ignoreBlankCells":   {strconv.FormatBool(opts.IgnoreBlankCells)},
	})
}

// TransposeRowsIntoColumns разворачивает каждые rowCount строк колонки
// в отдельные колонки.
func (p *Project) TransposeRowsIntoColumns(ctx context.Context, column string, rowCount int) (*Status, error) {
	return p.modelCommand(ctx, "transpose-rows-into-columns", url.Values{
		"columnName": {column},
		"rowCount":   {strconv.Itoa(rowCount)},
	})
}

// statusCommand выполняет команду с engine и возвращает её статус.
func (p *Project) statusCommand(ctx context.Context, command string, data url.Values) (*Status, error) {
	var status Status
	if err := p.DoJSON(ctx, command, data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// modelCommand — statusCommand для операций, меняющих модель колонок;
// после неё модели перезагружаются.
func (p *Project) modelCommand(ctx context.Context, command string, data url.Values) (*Status, error) {
	status, err := p.statusCommand(ctx, command, data)
	if err != nil {
		return nil, err
	}
	if err := p.LoadModels(ctx); err != nil {
		return nil, err
	}
	return status, nil
}
