package facet

import "errors"

var (
	// ErrMissingExpression — у bool facet не задано выражение.
	ErrMissingExpression = errors.New("facet expression is required")

	// ErrFacetNotFound — facet отсутствует в engine или в ответе сервера.
	ErrFacetNotFound = errors.New("facet not found")

	// ErrMalformedResponse — ответ compute-facets не удалось разобрать.
	ErrMalformedResponse = errors.New("malformed facets response")
)
