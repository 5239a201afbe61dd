// Package export пишет экспорт проекта в файл.
//
// Формат экспорта определяется расширением файла; суффикс .gz включает
// gzip-сжатие поверх любого формата (out.tsv.gz — tsv в gzip).
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DefaultFormat — формат, если расширение не указано.
const DefaultFormat = "tsv"

// Format возвращает формат экспорта и признак сжатия для пути.
func Format(path string) (format string, compressed bool) {
	base := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(base), ".gz") {
		compressed = true
		base = base[:len(base)-len(".gz")]
	}

	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	if ext == "" || path == "" || path == "-" {
		return DefaultFormat, compressed
	}
	return strings.ToLower(ext), compressed
}

// Copy копирует r в w, сжимая gzip при compressed=true.
// Возвращает число прочитанных из r байт.
func Copy(w io.Writer, r io.Reader, compressed bool) (int64, error) {
	if !compressed {
		return io.Copy(w, r)
	}

	zw := gzip.NewWriter(w)
	n, err := io.Copy(zw, r)
	if err != nil {
		zw.Close()
		return n, err
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("close gzip: %w", err)
	}
	return n, nil
}

// WriteFile записывает r в path. Запись идёт во временный файл рядом,
// который переименовывается в path только после успешной записи.
func WriteFile(path string, r io.Reader) (int64, error) {
	_, compressed := Format(path)

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}

	n, err := Copy(tmp, r, compressed)
	if err != nil {
		tmp.Close()
		return n, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, fmt.Errorf("rename to %s: %w", path, err)
	}
	return n, nil
}
