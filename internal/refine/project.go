package refine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/Refinery/internal/facet"
)

const defaultPollInterval = 500 * time.Millisecond

// HistoryEntry — запись истории проекта, созданная операцией.
type HistoryEntry struct {
	ID          int64  `json:"id"`
	Time        string `json:"time"`
	Description string `json:"description"`
}

// Project — проект на сервере OpenRefine.
//
// Engine и Sorting применяются ко всем запросам, которые их принимают
// (строки, facets, экспорт, операции над ячейками).
type Project struct {
	server *Server

	ID      string
	Engine  *facet.Engine
	Sorting *facet.Sorting

	// LastHistoryEntry — последняя запись истории из ответа сервера.
	LastHistoryEntry *HistoryEntry

	// Модели проекта; заполняются LoadModels.
	Columns     []string
	ColumnOrder map[string]int // имя → позиция в таблице
	ColumnIndex map[string]int // имя → индекс ячейки в строке
	KeyColumn   string
	HasRecords  bool
}

// NewProject создаёт хэндл проекта без обращения к серверу.
func NewProject(server *Server, projectID string) *Project {
	return &Project{
		server:      server,
		ID:          projectID,
		Engine:      facet.NewEngine(),
		Sorting:     facet.NewSorting(),
		ColumnOrder: map[string]int{},
		ColumnIndex: map[string]int{},
	}
}

// ProjectFromRef создаёт хэндл по ID или URL вида
// http://host:port/project?project=123. Для URL сервер берётся из ссылки
// (с настройками server) вместе с префиксом пути перед /project, иначе
// используется server.
func ProjectFromRef(server *Server, ref string) (*Project, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidProjectRef)
	}

	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return NewProject(server, ref), nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProjectRef, err)
	}
	id := u.Query().Get("project")
	if id == "" {
		return nil, fmt.Errorf("%w: no project parameter in %s", ErrInvalidProjectRef, ref)
	}

	s := *server
	prefix := strings.TrimSuffix(strings.TrimSuffix(u.EscapedPath(), "/"), "/project")
	s.baseURL = strings.TrimSuffix(u.Scheme+"://"+u.Host+prefix, "/")
	return NewProject(&s, id), nil
}

// Server возвращает соединение, через которое работает проект.
func (p *Project) Server() *Server {
	return p.server
}

// URL возвращает адрес страницы проекта.
func (p *Project) URL() string {
	return p.server.URL() + "/project?project=" + url.QueryEscape(p.ID)
}

// Name возвращает имя проекта.
func (p *Project) Name(ctx context.Context) (string, error) {
	return projectName(ctx, p.server, p.ID)
}

// DoRaw выполняет команду проекта и возвращает ответ с непрочитанным телом.
func (p *Project) DoRaw(ctx context.Context, command string, data url.Values) (*http.Response, error) {
	return p.server.Open(ctx, command, Request{Data: data, ProjectID: p.ID})
}

// DoJSON выполняет команду проекта с текущим engine и декодирует ответ в out.
func (p *Project) DoJSON(ctx context.Context, command string, data url.Values, out any) error {
	return p.doJSON(ctx, command, data, true, out)
}

// doJSON — DoJSON с выбором, передавать ли engine.
// Запись historyEntry из ответа сохраняется в LastHistoryEntry.
func (p *Project) doJSON(ctx context.Context, command string, data url.Values, includeEngine bool, out any) error {
	data = cloneValues(data)
	if includeEngine {
		engine, err := p.Engine.JSON()
		if err != nil {
			return err
		}
		data.Set("engine", engine)
	}

	var raw json.RawMessage
	if err := p.server.OpenJSON(ctx, command, Request{Data: data, ProjectID: p.ID}, &raw); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}

	if len(raw) > 0 && raw[0] == '{' {
		var h struct {
			HistoryEntry *HistoryEntry `json:"historyEntry"`
		}
		if err := json.Unmarshal(raw, &h); err == nil && h.HistoryEntry != nil {
			p.LastHistoryEntry = h.HistoryEntry
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", command, err)
	}
	return nil
}

// Status — ответ команды, не возвращающей данных.
type Status struct {
	Code         string        `json:"code"`
	Message      string        `json:"message,omitempty"`
	HistoryEntry *HistoryEntry `json:"historyEntry,omitempty"`
}

// wire-формат get-models.
type modelsResponse struct {
	ColumnModel struct {
		Columns []struct {
			Name      string `json:"name"`
			CellIndex int    `json:"cellIndex"`
		} `json:"columns"`
		KeyColumnName string `json:"keyColumnName"`
	} `json:"columnModel"`
	RecordModel struct {
		HasRecords bool `json:"hasRecords"`
	} `json:"recordModel"`
}

// LoadModels загружает модель колонок и записей проекта.
func (p *Project) LoadModels(ctx context.Context) error {
	var resp modelsResponse
	if err := p.doJSON(ctx, "get-models", nil, false, &resp); err != nil {
		return err
	}

	p.Columns = make([]string, 0, len(resp.ColumnModel.Columns))
	p.ColumnOrder = make(map[string]int, len(resp.ColumnModel.Columns))
	p.ColumnIndex = make(map[string]int, len(resp.ColumnModel.Columns))
	for i, c := range resp.ColumnModel.Columns {
		p.Columns = append(p.Columns, c.Name)
		p.ColumnOrder[c.Name] = i
		p.ColumnIndex[c.Name] = c.CellIndex
	}
	p.KeyColumn = resp.ColumnModel.KeyColumnName
	p.HasRecords = resp.RecordModel.HasRecords

	return nil
}

// Preference возвращает значение настройки сервера.
func (p *Project) Preference(ctx context.Context, name string) (any, error) {
	var resp struct {
		Value any `json:"value"`
	}
	req := Request{Params: url.Values{"name": {name}}, ProjectID: p.ID}
	if err := p.server.OpenJSON(ctx, "get-preference", req, &resp); err != nil {
		return nil, fmt.Errorf("get preference %s: %w", name, err)
	}
	return resp.Value, nil
}

// WaitUntilIdle опрашивает get-processes, пока у проекта есть
// выполняющиеся процессы. interval <= 0 — 500ms.
func (p *Project) WaitUntilIdle(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var resp struct {
			Processes []json.RawMessage `json:"processes"`
		}
		if err := p.doJSON(ctx, "get-processes", nil, false, &resp); err != nil {
			return err
		}
		if len(resp.Processes) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ApplyOperations применяет файл операций (JSON или JSONC) к проекту.
//
// Если сервер ответил pending и wait=true, ждёт завершения и возвращает
// "ok". Иначе возвращает code ответа.
func (p *Project) ApplyOperations(ctx context.Context, path string, wait bool) (string, error) {
	ops, err := ReadOperationsFile(path)
	if err != nil {
		return "", err
	}
	return p.ApplyOperationsJSON(ctx, ops, wait)
}

// ApplyOperationsJSON применяет уже прочитанный JSON-массив операций.
func (p *Project) ApplyOperationsJSON(ctx context.Context, ops json.RawMessage, wait bool) (string, error) {
	var status Status
	data := url.Values{"operations": {string(ops)}}
	if err := p.DoJSON(ctx, "apply-operations", data, &status); err != nil {
		return "", err
	}

	if status.Code == "pending" && wait {
		if err := p.WaitUntilIdle(ctx, 0); err != nil {
			return "", err
		}
		return "ok", nil
	}
	return status.Code, nil
}

// Export возвращает поток строк проекта в указанном формате
// (tsv, csv, xls, xlsx, html, ...). Фильтры engine применяются.
// Вызывающий закрывает поток.
func (p *Project) Export(ctx context.Context, format string) (io.ReadCloser, error) {
	if format == "" {
		format = "tsv"
	}

	name, err := p.Name(ctx)
	if err != nil {
		return nil, err
	}

	engine, err := p.Engine.JSON()
	if err != nil {
		return nil, err
	}

	command := "export-rows/" + url.PathEscape(name) + "." + format
	resp, err := p.DoRaw(ctx, command, url.Values{
		"format": {format},
		"engine": {engine},
	})
	if err != nil {
		return nil, fmt.Errorf("export project %s: %w", p.ID, err)
	}
	return resp.Body, nil
}

// ExportRows возвращает экспорт в виде строк без завершающих переводов строки.
func (p *Project) ExportRows(ctx context.Context, format string) ([]string, error) {
	rc, err := p.Export(ctx, format)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var lines []string
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return lines, nil
}

// Delete удаляет проект. Возвращает true, если сервер ответил ok.
func (p *Project) Delete(ctx context.Context) (bool, error) {
	var status Status
	if err := p.doJSON(ctx, "delete-project", nil, false, &status); err != nil {
		return false, err
	}
	return status.Code == "ok", nil
}

// ComputeFacets вычисляет facets. Переданные facets заменяют facets engine;
// без аргументов используется текущий engine.
func (p *Project) ComputeFacets(ctx context.Context, facets ...facet.Facet) (*facet.FacetsResponse, error) {
	if len(facets) > 0 {
		p.Engine.SetFacets(facets...)
	}

	var raw json.RawMessage
	if err := p.DoJSON(ctx, "compute-facets", nil, &raw); err != nil {
		return nil, err
	}
	return facet.ParseFacetsResponse(p.Engine, raw)
}
