package facet

import (
	"reflect"

	"github.com/shaiso/Refinery/internal/naming"
)

// Типы facets на проводе.
const (
	TypeList  = "list"
	TypeRange = "range"
	TypeText  = "text"
)

// Facet — facet, который можно положить в Engine.
type Facet interface {
	// Column возвращает имя колонки (для star/flag facets — пустая строка).
	Column() string
	// Params возвращает параметры facet в wire-формате (camelCase ключи).
	Params() map[string]any
	// Reset снимает выбор/диапазон facet.
	Reset()
}

// base — общие поля всех facets.
type base struct {
	facetType string
	column    string

	// Options — дополнительные параметры в snake_case.
	// Передаются серверу без изменений (кроме перевода ключей).
	Options map[string]any
}

// params собирает snake_case параметры и переводит ключи в camelCase.
// Значения nil не передаются.
func (b *base) params(fields map[string]any) map[string]any {
	m := map[string]any{
		"type":        b.facetType,
		"name":        b.column,
		"column_name": b.column,
	}
	for k, v := range b.Options {
		if v != nil {
			m[k] = v
		}
	}
	for k, v := range fields {
		if v != nil {
			m[k] = v
		}
	}
	return naming.KeysToCamel(m)
}

// Column возвращает имя колонки facet.
func (b *base) Column() string {
	return b.column
}

// TextFacet — list facet: выбор конкретных значений.
type TextFacet struct {
	base

	Expression  string
	OmitBlank   bool
	OmitError   bool
	SelectBlank bool
	SelectError bool
	Invert      bool

	selection []any
}

// NewTextFacet создаёт list facet по колонке с выражением "value".
// Переданные значения сразу попадают в выбор.
func NewTextFacet(column string, selection ...any) *TextFacet {
	f := &TextFacet{
		base:       base{facetType: TypeList, column: column},
		Expression: "value",
	}
	for _, v := range selection {
		f.Include(v)
	}
	return f
}

// Include добавляет значение в выбор. Повторное добавление игнорируется.
func (f *TextFacet) Include(value any) *TextFacet {
	for _, s := range f.selection {
		if reflect.DeepEqual(s, value) {
			return f
		}
	}
	f.selection = append(f.selection, value)
	return f
}

// Exclude убирает значение из выбора.
func (f *TextFacet) Exclude(value any) *TextFacet {
	kept := f.selection[:0]
	for _, s := range f.selection {
		if !reflect.DeepEqual(s, value) {
			kept = append(kept, s)
		}
	}
	f.selection = kept
	return f
}

// Reset очищает выбор.
func (f *TextFacet) Reset() {
	f.selection = nil
}

// Selection возвращает текущие выбранные значения.
func (f *TextFacet) Selection() []any {
	out := make([]any, len(f.selection))
	copy(out, f.selection)
	return out
}

// Params реализует Facet.
func (f *TextFacet) Params() map[string]any {
	selection := make([]any, 0, len(f.selection))
	for _, v := range f.selection {
		selection = append(selection, map[string]any{
			"v": map[string]any{"v": v, "l": v},
		})
	}

	return f.params(map[string]any{
		"expression":   f.Expression,
		"omit_blank":   f.OmitBlank,
		"omit_error":   f.OmitError,
		"select_blank": f.SelectBlank,
		"select_error": f.SelectError,
		"invert":       f.Invert,
		"selection":    selection,
	})
}

// NewBoolFacet создаёт list facet по булевому выражению.
// selection — необязательный начальный выбор (true или false).
func NewBoolFacet(column, expression string, selection ...bool) (*TextFacet, error) {
	if expression == "" {
		return nil, ErrMissingExpression
	}

	f := NewTextFacet(column)
	f.Expression = expression
	for _, v := range selection {
		f.Include(v)
	}
	return f, nil
}

// NewStarredFacet — facet по отметке starred.
func NewStarredFacet(selection ...bool) *TextFacet {
	f, _ := NewBoolFacet("", "row.starred", selection...)
	return f
}

// NewFlaggedFacet — facet по отметке flagged.
func NewFlaggedFacet(selection ...bool) *TextFacet {
	f, _ := NewBoolFacet("", "row.flagged", selection...)
	return f
}

// NewBlankFacet — facet по пустым ячейкам колонки.
func NewBlankFacet(column string, selection ...bool) *TextFacet {
	f, _ := NewBoolFacet(column, "isBlank(value)", selection...)
	return f
}

// reconJudgmentExpression группирует ячейки по результату reconciliation.
const reconJudgmentExpression = `forNonBlank(cell.recon.judgment, v, v, if(isNonBlank(value), "(unreconciled)", "(blank)"))`

// NewReconJudgmentFacet — facet по judgment reconciliation.
func NewReconJudgmentFacet(column string, selection ...any) *TextFacet {
	f := NewTextFacet(column, selection...)
	f.Expression = reconJudgmentExpression
	return f
}

// TextFilter — подстрочный фильтр по колонке.
type TextFilter struct {
	base

	Query         string
	CaseSensitive bool
}

// NewTextFilter создаёт text filter.
func NewTextFilter(column, query string, caseSensitive bool) *TextFilter {
	return &TextFilter{
		base:          base{facetType: TypeText, column: column},
		Query:         query,
		CaseSensitive: caseSensitive,
	}
}

// Reset очищает запрос фильтра.
func (f *TextFilter) Reset() {
	f.Query = ""
}

// Params реализует Facet.
func (f *TextFilter) Params() map[string]any {
	return f.params(map[string]any{
		"query":          f.Query,
		"case_sensitive": f.CaseSensitive,
		"mode":           "text",
	})
}

// NumericFacet — range facet по числовому выражению.
type NumericFacet struct {
	base

	// From и To — границы диапазона; nil означает «без ограничения».
	From *float64
	To   *float64

	Expression       string
	SelectBlank      bool
	SelectError      bool
	SelectNonNumeric bool
	SelectNumeric    bool
}

// NewNumericFacet создаёт range facet. По умолчанию выбраны все категории
// значений (blank, error, non-numeric, numeric).
func NewNumericFacet(column string) *NumericFacet {
	return &NumericFacet{
		base:             base{facetType: TypeRange, column: column},
		Expression:       "value",
		SelectBlank:      true,
		SelectError:      true,
		SelectNonNumeric: true,
		SelectNumeric:    true,
	}
}

// SetRange задаёт границы диапазона.
func (f *NumericFacet) SetRange(from, to float64) *NumericFacet {
	f.From = &from
	f.To = &to
	return f
}

// Reset снимает границы диапазона.
func (f *NumericFacet) Reset() {
	f.From = nil
	f.To = nil
}

// Params реализует Facet.
func (f *NumericFacet) Params() map[string]any {
	fields := map[string]any{
		"expression":         f.Expression,
		"select_blank":       f.SelectBlank,
		"select_error":       f.SelectError,
		"select_non_numeric": f.SelectNonNumeric,
		"select_numeric":     f.SelectNumeric,
	}
	if f.From != nil {
		fields["from"] = *f.From
	}
	if f.To != nil {
		fields["to"] = *f.To
	}
	return f.params(fields)
}
