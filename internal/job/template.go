package job

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"
)

// RenderContext — данные для шаблонов в полях задания:
//
//	{{ .Job }}             имя задания
//	{{ .RunID }}           ID запуска
//	{{ .Date }}            дата запуска, 2006-01-02
//	{{ .Time.Unix }}       время запуска
//	{{ .Env.HOME }}        переменные окружения
type RenderContext struct {
	Job   string
	RunID string
	Date  string
	Time  time.Time
	Env   map[string]string
}

// NewRenderContext собирает контекст запуска с текущим окружением.
func NewRenderContext(job, runID string, started time.Time) *RenderContext {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return &RenderContext{
		Job:   job,
		RunID: runID,
		Date:  started.Format(time.DateOnly),
		Time:  started,
		Env:   env,
	}
}

var templateFuncs = template.FuncMap{
	"default": func(def, val string) string {
		if val == "" {
			return def
		}
		return val
	},
	"lower":   strings.ToLower,
	"upper":   strings.ToUpper,
	"trim":    strings.TrimSpace,
	"replace": strings.ReplaceAll,
}

// Render выполняет шаблон. Строки без "{{" возвращаются как есть.
// Обращение к отсутствующему ключу Env — ошибка.
func Render(tmpl string, ctx *RenderContext) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return buf.String(), nil
}

// Rendered возвращает копию задания с выполненными шаблонами в project,
// create и export.
func (j *Job) Rendered(ctx *RenderContext) (*Job, error) {
	out := *j

	var err error
	render := func(field string, s *string) {
		if err != nil {
			return
		}
		var r string
		if r, err = Render(*s, ctx); err != nil {
			err = fmt.Errorf("%s: %w", field, err)
			return
		}
		*s = r
	}

	render("project", &out.Project)

	if j.Create != nil {
		c := *j.Create
		render("create.file", &c.File)
		render("create.url", &c.URL)
		render("create.name", &c.Name)
		out.Create = &c
	}

	if j.Export != nil {
		e := *j.Export
		render("export.output", &e.Output)
		render("export.postgres_table", &e.PostgresTable)
		out.Export = &e
	}

	if err != nil {
		return nil, err
	}
	return &out, nil
}
