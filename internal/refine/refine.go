package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/shaiso/Refinery/internal/naming"
)

// Refine — операции уровня сервера.
type Refine struct {
	server *Server
}

// New создаёт Refine поверх Server.
func New(server *Server) *Refine {
	return &Refine{server: server}
}

// Server возвращает соединение с сервером.
func (r *Refine) Server() *Server {
	return r.server
}

// ProjectMetadata — метаданные проекта из get-all-project-metadata.
type ProjectMetadata struct {
	Name     string   `json:"name"`
	Created  string   `json:"created"`
	Modified string   `json:"modified"`
	RowCount int      `json:"rowCount,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ModifiedTime разбирает время последнего изменения.
// Нулевое время — если поле пустое или в неизвестном формате.
func (m ProjectMetadata) ModifiedTime() time.Time {
	t, err := time.Parse(time.RFC3339, m.Modified)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ProjectSummary — проект из списка: ID + метаданные.
type ProjectSummary struct {
	ID string `json:"id"`
	ProjectMetadata
}

// ListProjects возвращает все проекты сервера: ID → метаданные.
func (r *Refine) ListProjects(ctx context.Context) (map[string]ProjectMetadata, error) {
	var resp struct {
		Projects map[string]ProjectMetadata `json:"projects"`
	}
	if err := r.server.OpenJSON(ctx, "get-all-project-metadata", Request{}, &resp); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if resp.Projects == nil {
		resp.Projects = map[string]ProjectMetadata{}
	}
	return resp.Projects, nil
}

// SortedProjects возвращает проекты, начиная с последнего изменённого.
func (r *Refine) SortedProjects(ctx context.Context) ([]ProjectSummary, error) {
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ProjectSummary, 0, len(projects))
	for id, meta := range projects {
		out = append(out, ProjectSummary{ID: id, ProjectMetadata: meta})
	}

	slices.SortStableFunc(out, func(a, b ProjectSummary) int {
		if c := b.ModifiedTime().Compare(a.ModifiedTime()); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	return out, nil
}

// ProjectName возвращает имя проекта.
func (r *Refine) ProjectName(ctx context.Context, projectID string) (string, error) {
	return projectName(ctx, r.server, projectID)
}

func projectName(ctx context.Context, server *Server, projectID string) (string, error) {
	var meta ProjectMetadata
	err := server.OpenJSON(ctx, "get-project-metadata", Request{ProjectID: projectID}, &meta)
	if err != nil {
		return "", fmt.Errorf("get project %s metadata: %w", projectID, err)
	}
	return meta.Name, nil
}

// OpenProject открывает проект по ID или URL и загружает его модели.
// Ссылка-URL указывает и сервер, и проект; иначе используется сервер r.
func (r *Refine) OpenProject(ctx context.Context, ref string) (*Project, error) {
	p, err := ProjectFromRef(r.server, ref)
	if err != nil {
		return nil, err
	}
	if err := p.LoadModels(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// Формат по умолчанию — файлы с разделителями (CSV/TSV).
const defaultProjectFormat = "text/line-based/*sv"

// NewProjectOptions — параметры импорта нового проекта.
//
// Используйте DefaultNewProjectOptions: у нулевых значений другой смысл
// (например, HeaderLines=0 — файл без заголовка).
type NewProjectOptions struct {
	File   string // локальный файл
	URL    string // или удалённый URL
	Name   string // по умолчанию — имя файла без расширения
	Format string

	Encoding               string
	Separator              string
	IgnoreLines            int
	HeaderLines            int
	SkipDataLines          int
	Limit                  int
	StoreBlankRows         bool
	GuessCellValueTypes    bool
	ProcessQuotes          bool
	StoreBlankCellsAsNulls bool
	IncludeFileSources     bool

	// Extra — дополнительные параметры импорта в snake_case.
	Extra map[string]any
}

// DefaultNewProjectOptions возвращает параметры импорта по умолчанию.
func DefaultNewProjectOptions() NewProjectOptions {
	return NewProjectOptions{
		Format:                 defaultProjectFormat,
		Separator:              ",",
		IgnoreLines:            -1,
		HeaderLines:            1,
		SkipDataLines:          0,
		Limit:                  -1,
		StoreBlankRows:         true,
		GuessCellValueTypes:    true,
		ProcessQuotes:          true,
		StoreBlankCellsAsNulls: true,
		IncludeFileSources:     false,
	}
}

// wireOptions собирает options JSON в camelCase.
func (o NewProjectOptions) wireOptions() map[string]any {
	m := map[string]any{
		"encoding":                   o.Encoding,
		"separator":                  o.Separator,
		"ignore_lines":               o.IgnoreLines,
		"header_lines":               o.HeaderLines,
		"skip_data_lines":            o.SkipDataLines,
		"limit":                      o.Limit,
		"store_blank_rows":           o.StoreBlankRows,
		"guess_cell_value_types":     o.GuessCellValueTypes,
		"process_quotes":             o.ProcessQuotes,
		"store_blank_cells_as_nulls": o.StoreBlankCellsAsNulls,
		"include_file_sources":       o.IncludeFileSources,
	}
	for k, v := range o.Extra {
		m[k] = v
	}
	return naming.KeysToCamel(m)
}

// NewProject создаёт проект из локального файла или URL.
//
// Сервер отвечает редиректом на страницу проекта; ID берётся из параметра
// project итогового URL.
func (r *Refine) NewProject(ctx context.Context, opts NewProjectOptions) (*Project, error) {
	if opts.File == "" && opts.URL == "" {
		return nil, ErrNoSource
	}

	name := opts.Name
	if name == "" {
		src := opts.File
		if src == "" {
			src = opts.URL
		}
		base := filepath.Base(src)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	format := opts.Format
	if format == "" {
		format = defaultProjectFormat
	}

	options, err := json.Marshal(opts.wireOptions())
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	fields := map[string]string{
		"project-name": name,
		"format":       format,
		"options":      string(options),
	}

	var file *FileField
	if opts.File != "" {
		f, err := os.Open(opts.File)
		if err != nil {
			return nil, fmt.Errorf("open project file: %w", err)
		}
		defer f.Close()
		file = &FileField{Field: "project-file", Name: filepath.Base(opts.File), Reader: f}
	} else {
		fields["project-url"] = opts.URL
	}

	resp, err := r.server.Upload(ctx, "create-project-from-upload", fields, file)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	defer resp.Body.Close()

	projectID := createdProjectID(resp.Request.URL, resp.Header.Get("Location"))
	if projectID == "" {
		return nil, ErrNoProjectCreated
	}

	p := NewProject(r.server, projectID)
	if err := p.LoadModels(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// createdProjectID ищет ID проекта в URL после редиректа или в Location.
func createdProjectID(final *url.URL, location string) string {
	if final != nil {
		if id := final.Query().Get("project"); id != "" {
			return id
		}
	}
	if location != "" {
		if u, err := url.Parse(location); err == nil {
			return u.Query().Get("project")
		}
	}
	return ""
}
