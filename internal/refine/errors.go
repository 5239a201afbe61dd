package refine

import (
	"errors"
	"fmt"
)

// Ошибки клиента.
var (
	// ErrExpectedJSON — сервер вернул не JSON там, где ожидался JSON.
	ErrExpectedJSON = errors.New("expected JSON response")

	// ErrInvalidProjectRef — не удалось извлечь ID проекта из ссылки.
	ErrInvalidProjectRef = errors.New("invalid project reference")

	// ErrInvalidAnnotation — аннотация строки не starred и не flagged.
	ErrInvalidAnnotation = errors.New("annotation must be starred or flagged")

	// ErrUnknownColumn — колонки нет в модели проекта.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrNoProjectCreated — сервер не вернул ID созданного проекта.
	ErrNoProjectCreated = errors.New("project not created")

	// ErrInvalidOperations — файл операций не является JSON-массивом.
	ErrInvalidOperations = errors.New("invalid operations file")

	// ErrNoSource — для нового проекта не указан ни файл, ни URL.
	ErrNoSource = errors.New("project file or URL is required")
)

// HTTPError — сервер ответил HTTP-кодом ошибки.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	// Data — form-данные запроса (для диагностики).
	Data string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP %d %q for %s", e.StatusCode, e.Status, e.URL)
	if e.Data != "" {
		msg += "\n\t" + e.Data
	}
	return msg
}

// ServerError — сервер вернул JSON с code, отличным от ok/pending.
type ServerError struct {
	Code    string
	Message string
}

// Error реализует интерфейс error.
func (e *ServerError) Error() string {
	return "server " + e.Code + ": " + e.Message
}

// IsServerError проверяет, является ли ошибка ServerError.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}
