// Package cli реализует инструмент командной строки refine.
//
// # Обзор
//
// CLI работает с сервером OpenRefine через пакет refine и сохраняет
// старую форму вызова на корневой команде:
//
//	refine --list
//	refine --export [--output=project.xls] PROJECT_ID_OR_URL
//	refine --apply trim.json PROJECT_ID_OR_URL
//
// Без --list и без единственного аргумента печатается usage.
//
// # Ключевые компоненты
//
// ## App
//
// Состояние запуска: настройки (пакет config), логгер, метрики и лениво
// созданные соединения с OpenRefine, PostgreSQL и брокером. Init
// вызывается из PersistentPreRunE после разбора флагов; Close пишет
// textfile метрик и закрывает соединения.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Warn/Error) — в stderr.
// Это позволяет использовать pipe: refine list --json | jq .
//
// ## Commands
//
// Команды над проектами: list, version, create, delete, export, apply,
// rows, rename-column, facet, cluster, cluster-edit. Задания: job
// validate, job run, job schedule, job history. События: events.
//
// Каждая команда создаётся фабричной функцией (NewListCmd и т.д.),
// принимающей refineFn и outputFn (или appFn) — замыкания для ленивого
// создания клиента и Output после парсинга PersistentFlags.
package cli
