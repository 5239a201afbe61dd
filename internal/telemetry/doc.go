// Package telemetry обеспечивает наблюдаемость клиента.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики запросов к OpenRefine
//
// CLI пишет логи в stderr: stdout занят данными (экспорт, списки).
// Разовые команды сохраняют метрики в textfile для node_exporter,
// планировщик отдаёт их на /metrics.
package telemetry
