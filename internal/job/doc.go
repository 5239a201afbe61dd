// Package job описывает и выполняет задания очистки проектов OpenRefine.
//
// Задание — YAML-файл:
//
//	name: authors-clean
//	project: "2281573611164"        # ID или URL проекта
//	create:                          # или импорт нового проекта
//	  file: authors.tsv
//	  separator: "\t"
//	  header_lines: 0
//	rename_columns:
//	  "Column 1": Affiliation_ID
//	operations: [trim.json]
//	cluster_edit:
//	  - {column: "Column 2", limit: 1}
//	export:
//	  output: "out/authors-{{ .Date }}.tsv.gz"
//	  postgres_table: authors
//	schedule: "0 3 * * *"
//
// Шаги выполняются в порядке: create/open, rename_columns (в порядке
// записи в файле), operations, cluster_edit, export. Относительные пути
// считаются от каталога файла задания. Строковые поля create, export
// и project — шаблоны text/template (см. RenderContext).
package job
