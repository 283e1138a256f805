// Package scheduler runs named periodic triggers with at most one execution
// in flight per name.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"melcloud-bridge/internal/events"
)

// Handler is the work bound to a trigger.
type Handler func(ctx context.Context) error

// Emitter receives warnings for failed executions.
type Emitter interface {
	Emit(events.Event)
}

type task struct {
	name     string
	interval time.Duration
	handler  Handler
	// sem has weight 1; holding it means an execution is in flight.
	sem  *semaphore.Weighted
	stop chan struct{}
}

// Scheduler fires triggers. It is fire-and-forget: effects are observed
// through events, never through return values.
type Scheduler struct {
	ctx    context.Context
	logger *slog.Logger
	events Emitter

	mu    sync.Mutex
	tasks map[string]*task
	wg    sync.WaitGroup
}

// New creates a scheduler. Handlers receive ctx; CancelAll does not cancel it,
// so in-flight work runs to completion.
func New(ctx context.Context, logger *slog.Logger, emitter Emitter) *Scheduler {
	return &Scheduler{
		ctx:    ctx,
		logger: logger.With("component", "scheduler"),
		events: emitter,
		tasks:  make(map[string]*task),
	}
}

// Schedule registers a named trigger that fires once immediately and then
// every interval. Registering an existing name replaces it; the replacement
// keeps the old lock, so it cannot run alongside an execution of the old one.
func (s *Scheduler) Schedule(name string, interval time.Duration, h Handler) {
	t := &task{
		name:     name,
		interval: interval,
		handler:  h,
		stop:     make(chan struct{}),
	}

	s.mu.Lock()
	if old, ok := s.tasks[name]; ok {
		close(old.stop)
		t.sem = old.sem
	} else {
		t.sem = semaphore.NewWeighted(1)
	}
	s.tasks[name] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(t)
	s.logger.Debug("trigger scheduled", "name", name, "interval", interval)
}

// Trigger fires a registered trigger out of band, under the same
// single-flight rule. It reports whether the name is registered.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fire(t)
	}()
	return true
}

// CancelAll stops every trigger and forgets their locks. Executions already
// running are not interrupted.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	for name, t := range s.tasks {
		close(t.stop)
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	s.logger.Debug("all triggers cancelled")
}

// Wait blocks until every loop and in-flight execution has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(t *task) {
	defer s.wg.Done()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fire(t)
	}()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.fire(t)
			}()
		case <-t.stop:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// fire runs the handler unless a previous execution still holds the lock.
func (s *Scheduler) fire(t *task) {
	if !t.sem.TryAcquire(1) {
		s.logger.Debug("trigger skipped, previous run in flight", "name", t.name)
		return
	}
	defer t.sem.Release(1)

	err := s.run(t)
	if err != nil {
		s.logger.Warn("trigger failed", "name", t.name, "err", err)
		if s.events != nil {
			s.events.Emit(events.Warning{
				Message: fmt.Sprintf("trigger %s failed", t.name),
				Err:     err,
				Time:    time.Now(),
			})
		}
	}
}

func (s *Scheduler) run(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.handler(s.ctx)
}
