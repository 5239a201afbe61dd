package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Sink загружает экспорт проектов в PostgreSQL.
type Sink struct {
	db     DB
	logger *slog.Logger
}

// New создаёт Sink. db обычно *pgxpool.Pool.
func New(db DB, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{db: db, logger: logger}
}

// LoadOptions — параметры LoadTSV.
type LoadOptions struct {
	// Truncate очищает таблицу перед загрузкой.
	Truncate bool
}

// LoadTSV загружает TSV с заголовком в table в одной транзакции.
// Пустые ячейки и недостающие хвостовые ячейки пишутся как NULL.
// Возвращает число загруженных строк.
func (s *Sink) LoadTSV(ctx context.Context, table string, r io.Reader, opts LoadOptions) (int64, error) {
	ident, err := TableIdentifier(table)
	if err != nil {
		return 0, err
	}

	columns, rows, err := ParseTSV(r)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, createTableSQL(ident, columns)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", table, err)
	}
	if opts.Truncate {
		if _, err := tx.Exec(ctx, "TRUNCATE "+ident.Sanitize()); err != nil {
			return 0, fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	n, err := tx.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("rows loaded", "table", table, "rows", n)
	return n, nil
}

// TableIdentifier разбирает "table" или "schema.table".
func TableIdentifier(name string) (pgx.Identifier, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTable, name)
		}
	}
	return pgx.Identifier(parts), nil
}

func createTableSQL(table pgx.Identifier, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " text"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table.Sanitize(), strings.Join(defs, ", "))
}

// ParseTSV читает экспорт OpenRefine в формате tsv: первая строка —
// имена колонок, ячейки разделены табуляцией без кавычек.
// Безымянные колонки получают имена column_N.
func ParseTSV(r io.Reader) ([]string, [][]any, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, nil, fmt.Errorf("read header: %w", err)
		}
		return nil, nil, ErrEmptyInput
	}

	columns := strings.Split(strings.TrimSuffix(sc.Text(), "\r"), "\t")
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if c == "" {
			c = fmt.Sprintf("column_%d", i+1)
			columns[i] = c
		}
		if seen[c] {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateColumn, c)
		}
		seen[c] = true
	}

	var rows [][]any
	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimSuffix(sc.Text(), "\r")
		if text == "" {
			continue
		}

		cells := strings.Split(text, "\t")
		if len(cells) > len(columns) {
			return nil, nil, fmt.Errorf("line %d: %w (%d > %d)", line, ErrRowTooWide, len(cells), len(columns))
		}

		row := make([]any, len(columns))
		for i, c := range cells {
			if c != "" {
				row[i] = c
			}
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read line %d: %w", line+1, err)
	}

	return columns, rows, nil
}
