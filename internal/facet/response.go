package facet

import (
	"encoding/json"
	"fmt"

	"github.com/shaiso/Refinery/internal/naming"
)

// Choice — одно значение list facet.
type Choice struct {
	Value    any  `json:"value"`
	Label    any  `json:"label"`
	Count    int  `json:"count"`
	Selected bool `json:"selected"`
}

// FacetResponse — ответ сервера на один facet.
type FacetResponse struct {
	Name       string            `json:"name"`
	Expression string            `json:"expression,omitempty"`
	Error      string            `json:"error,omitempty"`
	Choices    map[string]Choice `json:"choices,omitempty"`
	// BlankChoice — счётчик пустых значений; nil, если сервер его не прислал.
	BlankChoice *Choice `json:"blank_choice,omitempty"`
	// ErrorChoice — счётчик ошибок выражения.
	ErrorChoice *Choice `json:"error_choice,omitempty"`
	Bins        []int   `json:"bins,omitempty"`
	BaseBins    []int   `json:"base_bins,omitempty"`

	// Attributes — все скалярные поля ответа с ключами в snake_case
	// (min, max, step, from, to, numeric_count, ...).
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Choice возвращает выбор по значению. Значения не-строки ищутся по
// их строковому представлению (fmt.Sprint).
func (r *FacetResponse) Choice(value any) (Choice, bool) {
	c, ok := r.Choices[choiceKey(value)]
	return c, ok
}

// FacetsResponse — разобранный ответ compute-facets.
type FacetsResponse struct {
	Facets []*FacetResponse `json:"facets"`
	Mode   string           `json:"mode"`

	engine *Engine
}

// At возвращает ответ по позиции facet в engine.
func (r *FacetsResponse) At(i int) (*FacetResponse, error) {
	if i < 0 || i >= len(r.Facets) {
		return nil, fmt.Errorf("%w: index %d", ErrFacetNotFound, i)
	}
	return r.Facets[i], nil
}

// For возвращает ответ на конкретный facet engine.
func (r *FacetsResponse) For(f Facet) (*FacetResponse, error) {
	if r.engine == nil {
		return nil, fmt.Errorf("%w: response has no engine", ErrFacetNotFound)
	}
	i := r.engine.Index(f)
	if i < 0 {
		return nil, fmt.Errorf("%w: facet %q is not in engine", ErrFacetNotFound, f.Column())
	}
	return r.At(i)
}

// ByName возвращает первый ответ с указанным именем.
func (r *FacetsResponse) ByName(name string) (*FacetResponse, error) {
	for _, f := range r.Facets {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrFacetNotFound, name)
}

// wire-форматы ответа compute-facets.
type wireChoice struct {
	V struct {
		V any `json:"v"`
		L any `json:"l"`
	} `json:"v"`
	C int  `json:"c"`
	S bool `json:"s"`
}

type wireFacets struct {
	Facets []map[string]json.RawMessage `json:"facets"`
	Mode   string                       `json:"mode"`
}

// ParseFacetsResponse разбирает тело ответа compute-facets.
// engine используется для поиска ответа по facet (может быть nil).
func ParseFacetsResponse(engine *Engine, data []byte) (*FacetsResponse, error) {
	var wire wireFacets
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	resp := &FacetsResponse{
		Facets: make([]*FacetResponse, 0, len(wire.Facets)),
		Mode:   wire.Mode,
		engine: engine,
	}

	for i, raw := range wire.Facets {
		fr, err := parseFacet(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: facet %d: %v", ErrMalformedResponse, i, err)
		}
		resp.Facets = append(resp.Facets, fr)
	}

	return resp, nil
}

func parseFacet(raw map[string]json.RawMessage) (*FacetResponse, error) {
	fr := &FacetResponse{Attributes: make(map[string]any)}

	for key, value := range raw {
		switch key {
		case "choices":
			var choices []wireChoice
			if err := json.Unmarshal(value, &choices); err != nil {
				return nil, fmt.Errorf("choices: %w", err)
			}
			fr.Choices = make(map[string]Choice, len(choices))
			for _, c := range choices {
				fr.Choices[choiceKey(c.V.V)] = Choice{
					Value:    c.V.V,
					Label:    c.V.L,
					Count:    c.C,
					Selected: c.S,
				}
			}
		case "blankChoice", "errorChoice":
			var c struct {
				C int  `json:"c"`
				S bool `json:"s"`
			}
			if err := json.Unmarshal(value, &c); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			choice := &Choice{Count: c.C, Selected: c.S}
			if key == "blankChoice" {
				fr.BlankChoice = choice
			} else {
				fr.ErrorChoice = choice
			}
		case "bins", "baseBins":
			var bins []int
			if err := json.Unmarshal(value, &bins); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			if key == "bins" {
				fr.Bins = bins
			} else {
				fr.BaseBins = bins
			}
		default:
			var v any
			if err := json.Unmarshal(value, &v); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			switch v.(type) {
			case map[string]any, []any:
				// Вложенные структуры не нужны для удобного доступа
				continue
			}
			fr.Attributes[naming.FromCamel(key)] = v
		}
	}

	if s, ok := fr.Attributes["name"].(string); ok {
		fr.Name = s
	}
	if s, ok := fr.Attributes["expression"].(string); ok {
		fr.Expression = s
	}
	if s, ok := fr.Attributes["error"].(string); ok {
		fr.Error = s
	}

	return fr, nil
}

func choiceKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
