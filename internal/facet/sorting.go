package facet

import (
	"encoding/json"
	"fmt"
)

// Criterion — один критерий сортировки строк.
type Criterion struct {
	Column        string `json:"column"`
	ValueType     string `json:"valueType"`
	CaseSensitive bool   `json:"caseSensitive"`
	Reverse       bool   `json:"reverse"`
	ErrorPosition int    `json:"errorPosition"`
	BlankPosition int    `json:"blankPosition"`
}

// NewCriterion создаёт строковый регистронезависимый критерий по колонке.
// Ошибки сортируются перед пустыми значениями, оба — после обычных.
func NewCriterion(column string) Criterion {
	return Criterion{
		Column:        column,
		ValueType:     "string",
		ErrorPosition: 1,
		BlankPosition: 2,
	}
}

// Sorting — порядок строк для get-rows и reorder-rows.
type Sorting struct {
	Criteria []Criterion `json:"criteria"`
}

// NewSorting создаёт sorting по именам колонок.
func NewSorting(columns ...string) *Sorting {
	s := &Sorting{Criteria: []Criterion{}}
	for _, c := range columns {
		s.Criteria = append(s.Criteria, NewCriterion(c))
	}
	return s
}

// Add добавляет критерий.
func (s *Sorting) Add(c Criterion) *Sorting {
	s.Criteria = append(s.Criteria, c)
	return s
}

// Len возвращает количество критериев.
func (s *Sorting) Len() int {
	return len(s.Criteria)
}

// JSON возвращает sorting JSON в виде строки для form-параметра sorting.
func (s *Sorting) JSON() (string, error) {
	if s.Criteria == nil {
		s.Criteria = []Criterion{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal sorting: %w", err)
	}
	return string(data), nil
}
