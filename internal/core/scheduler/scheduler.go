// Package scheduler runs named periodic tasks on an injected clock. Each
// Scheduler is owned by its creator and lives for one Run call.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/pkg/clock"
)

// Task is one unit of periodic work. A returned error is logged and the
// task keeps its schedule.
type Task func(ctx context.Context) error

// Status describes the executions of one task so far.
type Status struct {
	Interval       time.Duration
	LastExecution  time.Time
	ExecutionCount uint64
	FailureCount   uint64
	LastError      error
}

type task struct {
	name     string
	interval time.Duration
	fn       Task
	status   Status
}

type Scheduler struct {
	clock  clock.Clock
	logger log.Log

	mu      sync.Mutex
	tasks   map[string]*task
	running bool
}

func New(clk clock.Clock, logger log.Log) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Scheduler{
		clock:  clk,
		logger: logger.With(log.String("component", "scheduler")),
		tasks:  make(map[string]*task),
	}
}

// Schedule registers fn to run every interval once Run starts.
func (s *Scheduler) Schedule(name string, interval time.Duration, fn Task) error {
	if interval <= 0 {
		return errors.Wrapf(protocol.ErrInvalidConfig, "task %q: interval %s", name, interval)
	}
	if fn == nil {
		return errors.Wrapf(protocol.ErrInvalidConfig, "task %q: nil func", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.Errorf("scheduler: cannot add task %q while running", name)
	}
	if _, exists := s.tasks[name]; exists {
		return errors.Errorf("scheduler: task %q already scheduled", name)
	}
	s.tasks[name] = &task{name: name, interval: interval, fn: fn, status: Status{Interval: interval}}
	return nil
}

func (s *Scheduler) Unschedule(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	_, ok := s.tasks[name]
	delete(s.tasks, name)
	return ok
}

// Tasks returns the scheduled task names in order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Run drives every task on its own ticker until ctx is cancelled. A task
// never overlaps itself; ticks that arrive while it runs are dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler: already running")
	}
	s.running = true
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	tickers := make([]*clock.Ticker, len(tasks))
	for i, t := range tasks {
		tickers[i] = s.clock.NewTicker(t.interval)
	}
	s.mu.Unlock()

	defer func() {
		for _, tk := range tickers {
			tk.Stop()
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("scheduler started", log.Int("tasks", len(tasks)))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tasks {
		ticker := tickers[i]
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					s.execute(gctx, t)
				}
			}
		})
	}
	err := g.Wait()

	s.logger.Info("scheduler stopped")
	return err
}

// RunNow executes the named task once, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return errors.Errorf("scheduler: unknown task %q", name)
	}
	return s.execute(ctx, t)
}

func (s *Scheduler) Status(name string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return Status{}, false
	}
	return t.status, true
}

func (s *Scheduler) execute(ctx context.Context, t *task) error {
	err := t.fn(ctx)

	s.mu.Lock()
	t.status.LastExecution = s.clock.Now()
	t.status.ExecutionCount++
	if err != nil {
		t.status.FailureCount++
	}
	t.status.LastError = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("task failed", log.String("task", t.name), log.Error(err))
	}
	return err
}
