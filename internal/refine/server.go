package refine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/shaiso/Refinery/internal/telemetry"
)

const (
	// DefaultHost и DefaultPort — адрес локального OpenRefine.
	DefaultHost = "127.0.0.1"
	DefaultPort = "3333"

	defaultTimeout = 30 * time.Second
	commandPrefix  = "/command/core/"
)

// DefaultHostPort возвращает адрес сервера из окружения.
//
// Хост: OPENREFINE_HOST, затем устаревший GOOGLE_REFINE_HOST, иначе 127.0.0.1.
// Порт: OPENREFINE_PORT, затем GOOGLE_REFINE_PORT, иначе 3333.
func DefaultHostPort() (host, port string) {
	host = firstNonEmpty(os.Getenv("OPENREFINE_HOST"), os.Getenv("GOOGLE_REFINE_HOST"), DefaultHost)
	port = firstNonEmpty(os.Getenv("OPENREFINE_PORT"), os.Getenv("GOOGLE_REFINE_PORT"), DefaultPort)
	return host, port
}

// DefaultURL возвращает адрес сервера из окружения (см. DefaultHostPort).
func DefaultURL() string {
	return ServerURL(DefaultHostPort())
}

// ServerURL собирает адрес сервера из хоста и порта.
func ServerURL(host, port string) string {
	return "http://" + host + ":" + port
}

// Request — параметры одного запроса к команде сервера.
type Request struct {
	// Data — form-поля тела. Непустое тело делает запрос POST.
	Data url.Values
	// Params — параметры query string.
	Params url.Values
	// ProjectID — ID проекта; попадает в тело или в query string.
	ProjectID string
}

// Server — соединение с сервером OpenRefine.
type Server struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	userAgent  string
}

// Option настраивает Server.
type Option func(*Server)

// WithHTTPClient задаёт HTTP-клиент.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpClient = c }
}

// WithTimeout задаёт таймаут запросов.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.httpClient.Timeout = d
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics включает учёт запросов.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithUserAgent задаёт заголовок User-Agent.
func WithUserAgent(ua string) Option {
	return func(s *Server) { s.userAgent = ua }
}

// NewServer создаёт Server. Пустой baseURL берётся из окружения
// (см. DefaultURL). Завершающий "/" отбрасывается.
func NewServer(baseURL string, opts ...Option) *Server {
	if baseURL == "" {
		baseURL = DefaultURL()
	}

	s := &Server{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		userAgent:  "refinery",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URL возвращает базовый адрес сервера.
func (s *Server) URL() string {
	return s.baseURL
}

// Open выполняет запрос к команде и возвращает ответ с непрочитанным телом.
//
// ID проекта кладётся в тело, если команда удаляющая или тело уже есть,
// иначе — в query string. HTTP-код >= 400 превращается в *HTTPError.
func (s *Server) Open(ctx context.Context, command string, req Request) (*http.Response, error) {
	data := cloneValues(req.Data)
	params := cloneValues(req.Params)

	if req.ProjectID != "" {
		if strings.Contains(command, "delete") || len(data) > 0 {
			data.Set("project", req.ProjectID)
		} else {
			params.Set("project", req.ProjectID)
		}
	}

	method := http.MethodGet
	var body io.Reader
	if len(data) > 0 {
		method = http.MethodPost
		s.addCSRFToken(ctx, params)
		body = strings.NewReader(data.Encode())
	}

	u := s.commandURL(command, params)
	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	return s.do(command, httpReq, data.Encode())
}

// OpenJSON выполняет запрос и декодирует JSON-ответ в out (если out != nil).
//
// Ответ-объект с code, отличным от "ok" и "pending", возвращается как
// *ServerError.
func (s *Server) OpenJSON(ctx context.Context, command string, req Request, out any) error {
	resp, err := s.Open(ctx, command, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp.Body, out)
}

// Upload отправляет multipart-форму (создание проекта).
// file может быть nil, если файл не передаётся.
func (s *Server) Upload(ctx context.Context, command string, fields map[string]string, file *FileField) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}

	if file != nil {
		fw, err := mw.CreateFormFile(file.Field, file.Name)
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := io.Copy(fw, file.Reader); err != nil {
			return nil, fmt.Errorf("copy file %s: %w", file.Name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	params := url.Values{}
	s.addCSRFToken(ctx, params)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.commandURL(command, params), &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	return s.do(command, httpReq, "")
}

// FileField — файл multipart-формы.
type FileField struct {
	Field  string
	Name   string
	Reader io.Reader
}

// Version — версия сервера (get-version).
type Version struct {
	Revision    string `json:"revision"`
	Version     string `json:"version"`
	FullVersion string `json:"full_version"`
	FullName    string `json:"full_name"`
}

// Version возвращает версию сервера.
func (s *Server) Version(ctx context.Context) (*Version, error) {
	var v Version
	if err := s.OpenJSON(ctx, "get-version", Request{}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// --- internals ---

func (s *Server) commandURL(command string, params url.Values) string {
	u := s.baseURL + commandPrefix + command
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// do выполняет запрос, учитывает метрики и проверяет HTTP-код.
func (s *Server) do(command string, req *http.Request, data string) (*http.Response, error) {
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept-Encoding", "gzip")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	elapsed := time.Since(start)

	label := metricCommand(command)
	if err != nil {
		s.metrics.ObserveRequest(label, 0, elapsed)
		return nil, fmt.Errorf("request %s: %w", command, err)
	}
	s.metrics.ObserveRequest(label, resp.StatusCode, elapsed)

	s.logger.Debug("refine request",
		"method", req.Method,
		"command", command,
		"status", resp.StatusCode,
		"duration", elapsed,
	)

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			URL:        req.URL.String(),
			Data:       data,
		}
	}

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decode gzip response %s: %w", command, err)
		}
		resp.Body = &gzipBody{Reader: zr, body: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
	}

	return resp, nil
}

// gzipBody распаковывает тело ответа и закрывает исходный поток.
type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (b *gzipBody) Close() error {
	b.Reader.Close()
	return b.body.Close()
}

// addCSRFToken добавляет csrf_token в params.
// Серверы до 3.3 не знают get-csrf-token — тогда запрос уходит без токена.
func (s *Server) addCSRFToken(ctx context.Context, params url.Values) {
	var token struct {
		Token string `json:"token"`
	}
	if err := s.OpenJSON(ctx, "get-csrf-token", Request{}, &token); err != nil {
		s.logger.Debug("csrf token unavailable", "error", err)
		return
	}
	if token.Token != "" {
		params.Set("csrf_token", token.Token)
	}
}

// decodeJSON читает тело, проверяет code и декодирует в out.
func decodeJSON(r io.Reader, out any) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return fmt.Errorf("%w: %s", ErrExpectedJSON, truncate(string(trimmed), 200))
	}

	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := checkStatus(trimmed); err != nil {
			return err
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus возвращает *ServerError, если code не ok/pending.
func checkStatus(body []byte) error {
	var status struct {
		Code    *string `json:"code"`
		Message string  `json:"message"`
		Stack   string  `json:"stack"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	if status.Code == nil || *status.Code == "ok" || *status.Code == "pending" {
		return nil
	}

	msg := status.Message
	if msg == "" {
		msg = status.Stack
	}
	if msg == "" {
		msg = string(body)
	}
	return &ServerError{Code: *status.Code, Message: msg}
}

// metricCommand отрезает имя файла у export-rows/<name>.<format>.
func metricCommand(command string) string {
	if i := strings.IndexByte(command, '/'); i >= 0 {
		return command[:i]
	}
	return command
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
