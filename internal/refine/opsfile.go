package refine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// ParseOperations проверяет файл операций и возвращает чистый JSON.
//
// Формат — JSON-массив операций, экспортированный из истории проекта.
// Допускаются комментарии // и /* */ и висячие запятые (JSONC).
func ParseOperations(data []byte) (json.RawMessage, error) {
	stripped := bytes.TrimSpace(jsonc.ToJSON(data))

	if !json.Valid(stripped) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidOperations)
	}
	if len(stripped) == 0 || stripped[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array of operations", ErrInvalidOperations)
	}

	return json.RawMessage(stripped), nil
}

// ReadOperationsFile читает и проверяет файл операций.
func ReadOperationsFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	ops, err := ParseOperations(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ops, nil
}
