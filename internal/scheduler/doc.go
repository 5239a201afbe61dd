// Package scheduler запускает задания по cron-расписанию.
//
// Scheduler хранит для каждой записи время следующего запуска и на каждом
// тике выполняет записи, время которых наступило. Ошибка одной записи
// логируется и не останавливает остальные.
//
// Структура:
//   - scheduler.go — Scheduler (Tick, Run)
//   - cron.go      — разбор cron-выражений и вычисление следующего времени
//   - http.go      — /healthz, /metrics и /jobs для работающего планировщика
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Entries: entries,
//	    Locker:  leader, // опционально: только ведущий выполняет задания
//	    Logger:  logger,
//	})
//	err = sched.Run(ctx)
//
// Leader election делается через Locker (например, sink.Leader на
// pg_try_advisory_lock): пока TryLock возвращает false, тики пропускаются.
package scheduler
