package job

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Refinery/internal/refine"
)

// Job — задание очистки одного проекта.
type Job struct {
	Name          string        `yaml:"name" json:"name"`
	Project       string        `yaml:"project,omitempty" json:"project,omitempty"`
	Create        *CreateStep   `yaml:"create,omitempty" json:"create,omitempty"`
	RenameColumns Renames       `yaml:"rename_columns,omitempty" json:"rename_columns,omitempty"`
	Operations    []string      `yaml:"operations,omitempty" json:"operations,omitempty"`
	ClusterEdit   []ClusterStep `yaml:"cluster_edit,omitempty" json:"cluster_edit,omitempty"`
	Export        *ExportStep   `yaml:"export,omitempty" json:"export,omitempty"`
	Schedule      string        `yaml:"schedule,omitempty" json:"schedule,omitempty"`

	// Path — файл, из которого загружено задание.
	Path string `yaml:"-" json:"path,omitempty"`
}

// CreateStep — импорт нового проекта.
type CreateStep struct {
	File      string `yaml:"file,omitempty" json:"file,omitempty"`
	URL       string `yaml:"url,omitempty" json:"url,omitempty"`
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	Format    string `yaml:"format,omitempty" json:"format,omitempty"`
	Encoding  string `yaml:"encoding,omitempty" json:"encoding,omitempty"`
	Separator string `yaml:"separator,omitempty" json:"separator,omitempty"`

	// nil — значение по умолчанию импорта.
	IgnoreLines            *int  `yaml:"ignore_lines,omitempty" json:"ignore_lines,omitempty"`
	HeaderLines            *int  `yaml:"header_lines,omitempty" json:"header_lines,omitempty"`
	SkipDataLines          *int  `yaml:"skip_data_lines,omitempty" json:"skip_data_lines,omitempty"`
	Limit                  *int  `yaml:"limit,omitempty" json:"limit,omitempty"`
	StoreBlankRows         *bool `yaml:"store_blank_rows,omitempty" json:"store_blank_rows,omitempty"`
	GuessCellValueTypes    *bool `yaml:"guess_cell_value_types,omitempty" json:"guess_cell_value_types,omitempty"`
	ProcessQuotes          *bool `yaml:"process_quotes,omitempty" json:"process_quotes,omitempty"`
	StoreBlankCellsAsNulls *bool `yaml:"store_blank_cells_as_nulls,omitempty" json:"store_blank_cells_as_nulls,omitempty"`
	IncludeFileSources     *bool `yaml:"include_file_sources,omitempty" json:"include_file_sources,omitempty"`
}

// apply переносит заданные поля в параметры импорта.
func (c *CreateStep) apply(opts *refine.NewProjectOptions) {
	opts.URL = c.URL
	opts.Name = c.Name
	opts.Encoding = c.Encoding
	if c.Format != "" {
		opts.Format = c.Format
	}
	if c.Separator != "" {
		opts.Separator = c.Separator
	}
	setInt(&opts.IgnoreLines, c.IgnoreLines)
	setInt(&opts.HeaderLines, c.HeaderLines)
	setInt(&opts.SkipDataLines, c.SkipDataLines)
	setInt(&opts.Limit, c.Limit)
	setBool(&opts.StoreBlankRows, c.StoreBlankRows)
	setBool(&opts.GuessCellValueTypes, c.GuessCellValueTypes)
	setBool(&opts.ProcessQuotes, c.ProcessQuotes)
	setBool(&opts.StoreBlankCellsAsNulls, c.StoreBlankCellsAsNulls)
	setBool(&opts.IncludeFileSources, c.IncludeFileSources)
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// ClusterStep — слияние кластеров колонки.
type ClusterStep struct {
	Column   string `yaml:"column" json:"column"`
	Limit    int    `yaml:"limit,omitempty" json:"limit,omitempty"` // 0 — все кластеры
	Type     string `yaml:"type,omitempty" json:"type,omitempty"`
	Function string `yaml:"function,omitempty" json:"function,omitempty"`
}

// ExportStep — куда выгрузить результат.
type ExportStep struct {
	// Output — файл; формат по расширению, .gz сжимает.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
	// PostgresTable — таблица для загрузки tsv-экспорта.
	PostgresTable string `yaml:"postgres_table,omitempty" json:"postgres_table,omitempty"`
	// Truncate очищает таблицу перед загрузкой.
	Truncate bool `yaml:"truncate,omitempty" json:"truncate,omitempty"`
}

// Rename — переименование колонки.
type Rename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Renames — переименования в порядке записи. В YAML задаются
// отображением "старое: новое", порядок ключей сохраняется.
type Renames []Rename

// UnmarshalYAML читает отображение, сохраняя порядок ключей.
func (r *Renames) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: rename_columns must be a mapping", value.Line)
	}

	out := make(Renames, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: rename_columns values must be strings", k.Line)
		}
		out = append(out, Rename{From: k.Value, To: v.Value})
	}
	*r = out
	return nil
}

// MarshalYAML пишет переименования обратно отображением.
func (r Renames) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, rn := range r {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: rn.From},
			&yaml.Node{Kind: yaml.ScalarNode, Value: rn.To},
		)
	}
	return node, nil
}

// Parse разбирает и проверяет задание. Неизвестные поля — ошибка.
func Parse(data []byte) (*Job, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var j Job
	if err := dec.Decode(&j); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, newValidationError("", "name", "empty job file", ErrMissingName)
		}
		return nil, fmt.Errorf("parse job: %w", err)
	}

	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

// Load читает задание из файла.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	j, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	j.Path = abs
	return j, nil
}

// LoadAll загружает несколько заданий; имена должны быть уникальны.
func LoadAll(paths ...string) ([]*Job, error) {
	jobs := make([]*Job, 0, len(paths))
	seen := make(map[string]string, len(paths))

	for _, p := range paths {
		j, err := Load(p)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[j.Name]; ok {
			return nil, fmt.Errorf("%w: %s in %s and %s", ErrDuplicateJob, j.Name, prev, p)
		}
		seen[j.Name] = p
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Resolve возвращает путь относительно каталога файла задания.
// Абсолютные пути и URL не меняются.
func (j *Job) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || j.Path == "" {
		return path
	}
	return filepath.Join(filepath.Dir(j.Path), path)
}
