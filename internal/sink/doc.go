// Package sink складывает результаты Refinery в PostgreSQL.
//
// LoadTSV загружает экспорт проекта (TSV с заголовком) в таблицу через
// COPY; таблица создаётся при первой загрузке, все колонки — text.
// RunLog хранит историю запусков заданий. Leader — advisory lock,
// по которому несколько планировщиков выбирают одного ведущего.
package sink
