package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

const defaultTickInterval = time.Second

// Entry — задание по расписанию.
type Entry struct {
	Name string
	Spec string // cron-выражение
	Run  func(ctx context.Context) error
}

// Locker — блокировка ведущего планировщика.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
}

// Config — конфигурация Scheduler.
type Config struct {
	Entries []Entry
	// Location — часовой пояс cron-выражений; nil — UTC.
	Location *time.Location
	// Locker — опционально; без него планировщик всегда ведущий.
	Locker       Locker
	Logger       *slog.Logger
	TickInterval time.Duration // по умолчанию 1s
	// Now — источник времени; по умолчанию time.Now.
	Now func() time.Time
}

// Status — состояние записи для /jobs.
type Status struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	NextRun time.Time `json:"next_run"`
	LastRun time.Time `json:"last_run,omitzero"`
	LastErr string    `json:"last_error,omitempty"`
	Runs    int       `json:"runs"`
}

type entryState struct {
	Entry
	next    time.Time
	last    time.Time
	lastErr error
	runs    int
}

// Scheduler выполняет записи по расписанию.
type Scheduler struct {
	locker   Locker
	logger   *slog.Logger
	interval time.Duration
	location *time.Location
	now      func() time.Time

	mu      sync.Mutex
	entries []*entryState
}

// New проверяет расписания и вычисляет первое время запуска.
func New(cfg Config) (*Scheduler, error) {
	if len(cfg.Entries) == 0 {
		return nil, errors.New("scheduler: no entries")
	}

	s := &Scheduler{
		locker:   cfg.Locker,
		logger:   cfg.Logger,
		interval: cfg.TickInterval,
		location: cfg.Location,
		now:      cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.interval <= 0 {
		s.interval = defaultTickInterval
	}
	if s.now == nil {
		s.now = time.Now
	}

	now := s.now()
	seen := make(map[string]bool, len(cfg.Entries))
	for _, e := range cfg.Entries {
		if e.Name == "" || e.Run == nil {
			return nil, fmt.Errorf("scheduler: entry %q has no name or run func", e.Name)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("scheduler: duplicate entry %q", e.Name)
		}
		seen[e.Name] = true

		next, err := NextRun(e.Spec, now, s.location)
		if err != nil {
			return nil, fmt.Errorf("scheduler: entry %q: %w", e.Name, err)
		}
		s.entries = append(s.entries, &entryState{Entry: e, next: next})
	}

	return s, nil
}

// Tick выполняет записи, чьё время наступило к now, по очереди.
// Возвращает число выполненных записей.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	if s.locker != nil {
		leader, err := s.locker.TryLock(ctx)
		if err != nil {
			return 0, fmt.Errorf("try lock: %w", err)
		}
		if !leader {
			return 0, nil
		}
	}

	ran := 0
	for _, e := range s.due(now) {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}

		s.logger.Info("running scheduled job", "job", e.Name, "due", e.next)
		err := e.Run(ctx)
		if err != nil {
			s.logger.Error("scheduled job failed", "job", e.Name, "error", err)
		}
		ran++

		next, nerr := NextRun(e.Spec, now, s.location)
		s.mu.Lock()
		e.last, e.lastErr = now, err
		e.runs++
		if nerr == nil {
			e.next = next
		}
		s.mu.Unlock()
	}

	return ran, nil
}

func (s *Scheduler) due(now time.Time) []*entryState {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entryState
	for _, e := range s.entries {
		if !e.next.After(now) {
			due = append(due, e)
		}
	}
	return due
}

// Run тикает каждые TickInterval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	tk := time.NewTicker(s.interval)
	defer tk.Stop()

	s.logger.Info("scheduler started", "entries", len(s.entries))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-tk.C:
			if _, err := s.Tick(ctx, s.now()); err != nil && ctx.Err() == nil {
				s.logger.Warn("scheduler tick failed", "error", err)
			}
		}
	}
}

// Statuses возвращает состояние записей, ближайшие первыми.
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		st := Status{
			Name:    e.Name,
			Spec:    e.Spec,
			NextRun: e.next,
			LastRun: e.last,
			Runs:    e.runs,
		}
		if e.lastErr != nil {
			st.LastErr = e.lastErr.Error()
		}
		out = append(out, st)
	}

	slices.SortFunc(out, func(a, b Status) int {
		if c := a.NextRun.Compare(b.NextRun); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
