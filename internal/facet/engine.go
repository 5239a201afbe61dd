package facet

import (
	"encoding/json"
	"fmt"
)

// Режимы engine.
const (
	ModeRowBased    = "row-based"
	ModeRecordBased = "record-based"
)

// Engine — набор facets, которые сервер применяет к проекту.
type Engine struct {
	facets []Facet
	Mode   string
}

// NewEngine создаёт engine в режиме row-based. nil facets пропускаются.
func NewEngine(facets ...Facet) *Engine {
	e := &Engine{Mode: ModeRowBased}
	e.SetFacets(facets...)
	return e
}

// SetFacets заменяет все facets engine.
func (e *Engine) SetFacets(facets ...Facet) {
	e.facets = make([]Facet, 0, len(facets))
	for _, f := range facets {
		if f != nil {
			e.facets = append(e.facets, f)
		}
	}
}

// AddFacet добавляет facet в конец списка.
func (e *Engine) AddFacet(f Facet) {
	if f != nil {
		e.facets = append(e.facets, f)
	}
}

// RemoveAll удаляет все facets.
func (e *Engine) RemoveAll() {
	e.facets = nil
}

// ResetAll сбрасывает выбор во всех facets, не удаляя их.
func (e *Engine) ResetAll() {
	for _, f := range e.facets {
		f.Reset()
	}
}

// Len возвращает количество facets.
func (e *Engine) Len() int {
	return len(e.facets)
}

// Facets возвращает facets в порядке добавления.
func (e *Engine) Facets() []Facet {
	out := make([]Facet, len(e.facets))
	copy(out, e.facets)
	return out
}

// Index возвращает позицию facet в engine или -1.
func (e *Engine) Index(f Facet) int {
	for i, ef := range e.facets {
		if ef == f {
			return i
		}
	}
	return -1
}

// MarshalJSON реализует json.Marshaler.
func (e *Engine) MarshalJSON() ([]byte, error) {
	facets := make([]map[string]any, 0, len(e.facets))
	for _, f := range e.facets {
		facets = append(facets, f.Params())
	}

	mode := e.Mode
	if mode == "" {
		mode = ModeRowBased
	}

	return json.Marshal(struct {
		Facets []map[string]any `json:"facets"`
		Mode   string           `json:"mode"`
	}{facets, mode})
}

// JSON возвращает engine JSON в виде строки для form-параметра engine.
func (e *Engine) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal engine: %w", err)
	}
	return string(data), nil
}
