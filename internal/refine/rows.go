package refine

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/shaiso/Refinery/internal/facet"
)

const defaultRowsLimit = 10

// Row — строка проекта.
type Row struct {
	Index   int   `json:"index"`
	Flagged bool  `json:"flagged"`
	Starred bool  `json:"starred"`
	Cells   []any `json:"cells"`

	columnIndex map[string]int
}

// Get возвращает значение ячейки по имени колонки.
// Сервер отбрасывает хвостовые пустые ячейки — для них возвращается nil.
func (r Row) Get(column string) any {
	i, ok := r.columnIndex[column]
	if !ok || i < 0 || i >= len(r.Cells) {
		return nil
	}
	return r.Cells[i]
}

// RowsResponse — ответ get-rows.
type RowsResponse struct {
	Mode     string `json:"mode"`
	Filtered int    `json:"filtered"`
	Start    int    `json:"start"`
	Limit    int    `json:"limit"`
	Total    int    `json:"total"`
	Rows     []Row  `json:"rows"`
}

// wire-формат строки get-rows.
type wireRow struct {
	I       int  `json:"i"`
	Flagged bool `json:"flagged"`
	Starred bool `json:"starred"`
	Cells   []*struct {
		V any `json:"v"`
	} `json:"cells"`
}

type wireRows struct {
	Mode     string    `json:"mode"`
	Filtered int       `json:"filtered"`
	Start    int       `json:"start"`
	Limit    int       `json:"limit"`
	Total    int       `json:"total"`
	Rows     []wireRow `json:"rows"`
}

// RowsOptions — параметры GetRows.
type RowsOptions struct {
	// Facets заменяют facets engine, если заданы.
	Facets []facet.Facet
	// SortBy заменяет sorting проекта, если не nil.
	SortBy []string
	Start  int
	// Limit — число строк; 0 означает 10.
	Limit int
}

// GetRows возвращает строки проекта с учётом engine и sorting.
func (p *Project) GetRows(ctx context.Context, opts RowsOptions) (*RowsResponse, error) {
	if len(opts.Facets) > 0 {
		p.Engine.SetFacets(opts.Facets...)
	}
	if opts.SortBy != nil {
		p.Sorting = facet.NewSorting(opts.SortBy...)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultRowsLimit
	}

	sorting, err := p.Sorting.JSON()
	if err != nil {
		return nil, err
	}

	var wire wireRows
	data := url.Values{
		"sorting": {sorting},
		"start":   {strconv.Itoa(opts.Start)},
		"limit":   {strconv.Itoa(limit)},
	}
	if err := p.DoJSON(ctx, "get-rows", data, &wire); err != nil {
		return nil, err
	}

	return p.rowsFromWire(wire), nil
}

func (p *Project) rowsFromWire(wire wireRows) *RowsResponse {
	resp := &RowsResponse{
		Mode:     wire.Mode,
		Filtered: wire.Filtered,
		Start:    wire.Start,
		Limit:    wire.Limit,
		Total:    wire.Total,
		Rows:     make([]Row, 0, len(wire.Rows)),
	}

	for _, wr := range wire.Rows {
		cells := make([]any, len(wr.Cells))
		for i, c := range wr.Cells {
			if c != nil {
				cells[i] = c.V
			}
		}
		resp.Rows = append(resp.Rows, Row{
			Index:       wr.I,
			Flagged:     wr.Flagged,
			Starred:     wr.Starred,
			Cells:       cells,
			columnIndex: p.ColumnIndex,
		})
	}

	return resp
}

// ReorderRows навсегда переупорядочивает строки проекта.
// После операции sorting проекта сбрасывается.
func (p *Project) ReorderRows(ctx context.Context, sortBy ...string) (*Status, error) {
	if sortBy != nil {
		p.Sorting = facet.NewSorting(sortBy...)
	}

	sorting, err := p.Sorting.JSON()
	if err != nil {
		return nil, err
	}

	var status Status
	if err := p.DoJSON(ctx, "reorder-rows", url.Values{"sorting": {sorting}}, &status); err != nil {
		return nil, err
	}
	p.Sorting = facet.NewSorting()
	return &status, nil
}

// RemoveRows удаляет строки, выбранные engine (или переданными facets).
func (p *Project) RemoveRows(ctx context.Context, facets ...facet.Facet) (*Status, error) {
	if len(facets) > 0 {
		p.Engine.SetFacets(facets...)
	}
	var status Status
	if err := p.DoJSON(ctx, "remove-rows", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AnnotateOneRow ставит или снимает отметку starred/flagged у строки.
func (p *Project) AnnotateOneRow(ctx context.Context, row int, annotation string, state bool) (*Status, error) {
	if annotation != "starred" && annotation != "flagged" {
		return nil, ErrInvalidAnnotation
	}

	var status Status
	data := url.Values{
		"row":      {strconv.Itoa(row)},
		annotation: {strconv.FormatBool(state)},
	}
	if err := p.DoJSON(ctx, "annotate-one-row", data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// FlagRow ставит или снимает флаг у строки.
func (p *Project) FlagRow(ctx context.Context, row int, flagged bool) (*Status, error) {
	return p.AnnotateOneRow(ctx, row, "flagged", flagged)
}

// StarRow ставит или снимает звезду у строки.
func (p *Project) StarRow(ctx context.Context, row int, starred bool) (*Status, error) {
	return p.AnnotateOneRow(ctx, row, "starred", starred)
}

// MarshalJSON выводит строку вместе со значениями по именам колонок.
func (r Row) MarshalJSON() ([]byte, error) {
	type plain Row
	values := make(map[string]any, len(r.columnIndex))
	for name := range r.columnIndex {
		values[name] = r.Get(name)
	}
	return json.Marshal(struct {
		plain
		Values map[string]any `json:"values,omitempty"`
	}{plain(r), values})
}
