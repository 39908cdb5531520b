// Copyright 2026 SchemaGate
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"schemagate/platform/shared/logger"
)

const (
	// DefaultWorkerCount is the fixed size of the background worker pool
	DefaultWorkerCount = 4
	// DefaultQueueSize bounds tasks waiting for a worker
	DefaultQueueSize = 64
	// DefaultUnitTimeout bounds a single unit's registry I/O
	DefaultUnitTimeout = 2 * time.Minute
)

// Engine executes one kind of work unit and finalizes the task once every
// unit has a recorded result.
type Engine interface {
	// ExecuteUnit performs one unit and returns its result. Implementations
	// must not panic on registry errors; errors become unit failures.
	ExecuteUnit(ctx context.Context, plan *Plan, unit WorkUnit) UnitResult

	// Finalize runs after all units completed without abort, before the
	// task is marked completed. Engines without post-processing return nil.
	Finalize(ctx context.Context, task *Task) error
}

// SchedulerConfig tunes the worker pool
type SchedulerConfig struct {
	Workers     int
	QueueSize   int
	UnitTimeout time.Duration
}

// Scheduler owns task lifecycle: identifiers, the worker pool, progress
// bookkeeping, cancellation and retention of completed task records.
type Scheduler struct {
	store   *TaskStore
	engines map[TaskKind]Engine
	queue   chan *Task
	config  SchedulerConfig
	metrics *TaskMetrics
	logger  *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards closed and orders Submit's enqueue against Stop closing
	// the queue channel
	mu     sync.Mutex
	closed bool

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewScheduler creates a scheduler over the given store. Engines are
// registered per kind before Start.
func NewScheduler(store *TaskStore, metrics *TaskMetrics, config SchedulerConfig) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.UnitTimeout <= 0 {
		config.UnitTimeout = DefaultUnitTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:   store,
		engines: make(map[TaskKind]Engine),
		queue:   make(chan *Task, config.QueueSize),
		config:  config,
		metrics: metrics,
		logger:  logger.New("scheduler"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register wires the engine executing a task kind
func (s *Scheduler) Register(kind TaskKind, engine Engine) {
	s.engines[kind] = engine
}

// Start launches the worker pool
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		for i := 0; i < s.config.Workers; i++ {
			s.wg.Add(1)
			go s.worker()
		}
		s.logger.Info("", "", "scheduler started", map[string]interface{}{
			"workers":    s.config.Workers,
			"queue_size": s.config.QueueSize,
		})
	})
}

// Stop drains the pool. In-flight units are allowed to finish; queued tasks
// are picked up until the context deadline, after which workers exit at the
// next unit boundary.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			s.cancel()
			<-done
		}
		s.cancel()
	})
}

// Submit creates a task for the plan, enqueues it and returns the task
// identifier immediately. It never blocks on registry I/O. A saturated
// queue rejects the submission with QueueFullError; a stopped scheduler
// rejects it with a plain error.
func (s *Scheduler) Submit(plan *Plan, kind TaskKind) (string, error) {
	if plan == nil {
		return "", fmt.Errorf("cannot submit a nil plan")
	}
	if plan.DryRun {
		return "", fmt.Errorf("dry-run plans are never executed")
	}
	if _, ok := s.engines[kind]; !ok {
		return "", fmt.Errorf("no engine registered for task kind %s", kind)
	}

	task := newTask(uuid.New().String(), kind, plan)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", fmt.Errorf("scheduler is stopped")
	}
	s.store.Add(task)
	select {
	case s.queue <- task:
	default:
		s.store.Remove(task.ID())
		s.mu.Unlock()
		return "", &QueueFullError{QueueSize: s.config.QueueSize}
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TasksSubmitted.WithLabelValues(string(kind)).Inc()
		s.metrics.QueueDepth.Set(float64(len(s.queue)))
	}

	s.logger.Info(task.ID(), "", "task submitted", map[string]interface{}{
		"kind":        string(kind),
		"total_units": plan.TotalUnits,
	})

	return task.ID(), nil
}

// Progress returns a consistent snapshot of a task. It never blocks on the
// worker executing the task.
func (s *Scheduler) Progress(taskID string) (TaskSnapshot, error) {
	task, ok := s.store.Get(taskID)
	if !ok {
		return TaskSnapshot{}, &UnknownTaskError{TaskID: taskID}
	}
	return task.Snapshot(), nil
}

// Cancel requests cooperative cancellation. The request takes effect at the
// next unit boundary; an in-flight registry call is allowed to finish so the
// remote registry is never left half-written.
func (s *Scheduler) Cancel(taskID string) error {
	task, ok := s.store.Get(taskID)
	if !ok {
		return &UnknownTaskError{TaskID: taskID}
	}
	if !task.RequestCancel() {
		return &CancellationError{TaskID: taskID, Status: task.statusLocked()}
	}
	s.logger.Info(taskID, "", "cancellation requested", nil)
	return nil
}

// ListActive returns summaries for all non-terminal tasks
func (s *Scheduler) ListActive() []TaskSummary {
	return s.store.Active()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for task := range s.queue {
		if s.metrics != nil {
			s.metrics.QueueDepth.Set(float64(len(s.queue)))
		}
		s.runTask(task)
	}
}

// runTask executes a task's units strictly in plan order. Exactly one
// worker runs a given task.
func (s *Scheduler) runTask(task *Task) {
	// Cancelled while still queued: terminal with zero completed units
	if task.cancelPending() {
		task.finish(StatusCancelled, "")
		s.observeFinish(task)
		return
	}

	engine := s.engines[task.Kind()]
	task.setRunning()
	if s.metrics != nil {
		s.metrics.TasksRunning.Inc()
		defer s.metrics.TasksRunning.Dec()
	}

	plan := task.Plan()
	tolerant := toleratesPartialFailure[task.Kind()]

	for _, unit := range plan.Units {
		// Cooperative cancellation: checked only at unit boundaries
		if task.cancelPending() {
			task.finish(StatusCancelled, "")
			s.observeFinish(task)
			return
		}
		if s.ctx.Err() != nil {
			task.finish(StatusCancelled, "scheduler shutting down")
			s.observeFinish(task)
			return
		}

		task.setProgress("running: " + unit.Description())

		unitCtx, cancel := context.WithTimeout(s.ctx, s.config.UnitTimeout)
		result := engine.ExecuteUnit(unitCtx, plan, unit)
		cancel()

		task.recordResult(result)
		if s.metrics != nil {
			s.metrics.UnitOutcomes.WithLabelValues(string(task.Kind()), string(result.Outcome)).Inc()
		}

		if result.Outcome == OutcomeFailure && !tolerant {
			task.finish(StatusFailed, result.Error)
			s.observeFinish(task)
			return
		}
	}

	finalCtx, cancel := context.WithTimeout(context.Background(), s.config.UnitTimeout)
	err := engine.Finalize(finalCtx, task)
	cancel()
	if err != nil {
		task.finish(StatusFailed, err.Error())
		s.observeFinish(task)
		return
	}

	task.finish(StatusCompleted, "")
	s.observeFinish(task)
}

func (s *Scheduler) observeFinish(task *Task) {
	snap := task.Snapshot()

	if s.metrics != nil {
		s.metrics.TasksFinished.WithLabelValues(string(snap.Kind), string(snap.Status)).Inc()
		if snap.StartedAt != nil && snap.CompletedAt != nil {
			s.metrics.TaskDuration.WithLabelValues(string(snap.Kind), string(snap.Status)).
				Observe(snap.CompletedAt.Sub(*snap.StartedAt).Seconds())
		}
	}

	s.logger.Info(snap.TaskID, "", "task finished", map[string]interface{}{
		"kind":            string(snap.Kind),
		"status":          string(snap.Status),
		"completed_units": snap.CompletedUnits,
		"total_units":     snap.TotalUnits,
	})
}
