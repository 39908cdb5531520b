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
	"fmt"
	"sync"
	"time"
)

// TaskKind identifies the operation a task executes
type TaskKind string

const (
	KindMigration  TaskKind = "migration"
	KindComparison TaskKind = "comparison"
	KindCleanup    TaskKind = "cleanup"
)

// toleratesPartialFailure is the per-kind failure policy: migration and
// cleanup record unit failures and continue, comparison aborts on the first
// failure because a partial comparison is misleading.
var toleratesPartialFailure = map[TaskKind]bool{
	KindMigration:  true,
	KindCleanup:    true,
	KindComparison: false,
}

// TaskStatus is the scheduler-owned task state machine
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"

	// StatusCancelling is reported to pollers while a running task has a
	// pending cancellation request. It is derived, never stored.
	StatusCancelling TaskStatus = "cancelling"
)

// IsTerminal reports whether a stored status is terminal
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// UnitType tags the variant of a work unit
type UnitType string

const (
	UnitMigrateSchema UnitType = "migrate_schema"
	UnitDeleteSubject UnitType = "delete_subject"
	UnitFetchSide     UnitType = "fetch_side"
)

// Comparison sides
const (
	SideSource = "source"
	SideTarget = "target"
)

// WorkUnit is the smallest schedulable action. Immutable once produced by
// the planner.
type WorkUnit struct {
	Type UnitType `json:"type"`

	Registry string `json:"registry,omitempty"`
	Context  string `json:"context,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Version  int    `json:"version,omitempty"`

	// Migration targets and policy
	TargetRegistry string `json:"target_registry,omitempty"`
	TargetContext  string `json:"target_context,omitempty"`
	Overwrite      bool   `json:"overwrite,omitempty"`
	PreserveIDs    bool   `json:"preserve_ids,omitempty"`

	// Comparison side label
	Side string `json:"side,omitempty"`
}

// Description renders a short human-readable account of the unit
func (u WorkUnit) Description() string {
	switch u.Type {
	case UnitMigrateSchema:
		return fmt.Sprintf("migrate %s v%d (%s/%s) to %s/%s",
			u.Subject, u.Version, u.Registry, displayContext(u.Context),
			u.TargetRegistry, displayContext(u.TargetContext))
	case UnitDeleteSubject:
		return fmt.Sprintf("delete subject %s (%s/%s)", u.Subject, u.Registry, displayContext(u.Context))
	case UnitFetchSide:
		return fmt.Sprintf("fetch %s listing (%s/%s)", u.Side, u.Registry, displayContext(u.Context))
	default:
		return string(u.Type)
	}
}

func displayContext(name string) string {
	if name == "" {
		return "."
	}
	return name
}

// Plan is the enumerated, immutable list of work derived from a request,
// shared by the dry-run preview and execution paths.
type Plan struct {
	Kind       TaskKind   `json:"kind"`
	Units      []WorkUnit `json:"units"`
	TotalUnits int        `json:"total_units"`
	CreatedAt  time.Time  `json:"created_at"`
	DryRun     bool       `json:"dry_run"`
	Summary    string     `json:"summary"`

	// Cleanup metadata (context deletion decided after unit execution)
	Registry           string   `json:"registry,omitempty"`
	Contexts           []string `json:"contexts,omitempty"`
	DeleteContextAfter bool     `json:"delete_context_after,omitempty"`
}

// Outcome classifies a finished unit
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// UnitResult records the outcome of one executed unit. The list on a task
// is append-only.
type UnitResult struct {
	Unit    WorkUnit `json:"unit"`
	Outcome Outcome  `json:"outcome"`
	Error   string   `json:"error,omitempty"`
	Warning string   `json:"warning,omitempty"`

	// payload carries engine-internal data between unit execution and task
	// finalization (comparison side listings). Never serialized.
	payload interface{}
}

// DiffKind classifies one subject-level difference between two registries
type DiffKind string

const (
	DiffMissingInTarget DiffKind = "missing_in_target"
	DiffMissingInSource DiffKind = "missing_in_source"
	DiffVersionMismatch DiffKind = "version_mismatch"
	DiffConfigMismatch  DiffKind = "config_mismatch"
)

// SubjectDiff is one entry of a comparison result
type SubjectDiff struct {
	Subject  string   `json:"subject"`
	DiffKind DiffKind `json:"diff_kind"`
	Detail   string   `json:"detail,omitempty"`
}

// ComparisonResult is the structured diff produced by a completed
// comparison task
type ComparisonResult struct {
	Source string        `json:"source"`
	Target string        `json:"target"`
	Diffs  []SubjectDiff `json:"diffs"`
}

// Task is the unit of schedulable, cancellable, observable work. The
// scheduler exclusively owns status transitions; any number of pollers read
// snapshots concurrently.
type Task struct {
	mu sync.RWMutex

	taskID              string
	kind                TaskKind
	status              TaskStatus
	plan                *Plan
	completedUnits      int
	progressDescription string
	unitResults         []UnitResult
	comparison          *ComparisonResult
	createdAt           time.Time
	startedAt           *time.Time
	completedAt         *time.Time
	cancelRequested     bool
	failureReason       string
}

func newTask(id string, kind TaskKind, plan *Plan) *Task {
	return &Task{
		taskID:    id,
		kind:      kind,
		status:    StatusPending,
		plan:      plan,
		createdAt: time.Now().UTC(),
	}
}

// ID returns the task identifier
func (t *Task) ID() string {
	return t.taskID
}

// Kind returns the task kind
func (t *Task) Kind() TaskKind {
	return t.kind
}

// Plan returns the task's plan. Plans are immutable, so no copy is needed.
func (t *Task) Plan() *Plan {
	return t.plan
}

// RequestCancel marks the task for cooperative cancellation. Returns false
// when the task is already terminal.
func (t *Task) RequestCancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return false
	}
	t.cancelRequested = true
	return true
}

func (t *Task) cancelPending() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelRequested
}

func (t *Task) setRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.status = StatusRunning
	t.startedAt = &now
}

func (t *Task) setProgress(description string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progressDescription = description
}

func (t *Task) recordResult(result UnitResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unitResults = append(t.unitResults, result)
	t.completedUnits++
	t.progressDescription = "finished: " + result.Unit.Description()
}

func (t *Task) setComparison(result *ComparisonResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.comparison = result
}

func (t *Task) finish(status TaskStatus, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.status = status
	t.completedAt = &now
	t.failureReason = reason
	switch status {
	case StatusCompleted:
		t.progressDescription = "completed"
	case StatusCancelled:
		t.progressDescription = "cancelled"
	case StatusFailed:
		t.progressDescription = "failed: " + reason
	}
}

func (t *Task) statusLocked() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// results returns a copy of the recorded unit results
func (t *Task) results() []UnitResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]UnitResult, len(t.unitResults))
	copy(out, t.unitResults)
	return out
}

// TaskSnapshot is a consistent point-in-time copy of a task's observable
// fields, safe to hand to pollers.
type TaskSnapshot struct {
	TaskID              string            `json:"task_id"`
	Kind                TaskKind          `json:"kind"`
	Status              TaskStatus        `json:"status"`
	CompletedUnits      int               `json:"completed_units"`
	TotalUnits          int               `json:"total_units"`
	ProgressDescription string            `json:"progress_description"`
	UnitResults         []UnitResult      `json:"unit_results"`
	Comparison          *ComparisonResult `json:"comparison,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	StartedAt           *time.Time        `json:"started_at,omitempty"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
	CancelRequested     bool              `json:"cancel_requested"`
	FailureReason       string            `json:"failure_reason,omitempty"`
}

// Snapshot returns a consistent copy of the task's current state. A running
// task with a pending cancellation reports the derived "cancelling" status.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := t.status
	if t.cancelRequested && (status == StatusRunning || status == StatusPending) {
		status = StatusCancelling
	}

	results := make([]UnitResult, len(t.unitResults))
	copy(results, t.unitResults)

	return TaskSnapshot{
		TaskID:              t.taskID,
		Kind:                t.kind,
		Status:              status,
		CompletedUnits:      t.completedUnits,
		TotalUnits:          t.plan.TotalUnits,
		ProgressDescription: t.progressDescription,
		UnitResults:         results,
		Comparison:          t.comparison,
		CreatedAt:           t.createdAt,
		StartedAt:           t.startedAt,
		CompletedAt:         t.completedAt,
		CancelRequested:     t.cancelRequested,
		FailureReason:       t.failureReason,
	}
}

// TaskSummary is the compact listing form of a task
type TaskSummary struct {
	TaskID         string     `json:"task_id"`
	Kind           TaskKind   `json:"kind"`
	Status         TaskStatus `json:"status"`
	CompletedUnits int        `json:"completed_units"`
	TotalUnits     int        `json:"total_units"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Summary returns the compact listing form of the task
func (t *Task) Summary() TaskSummary {
	snap := t.Snapshot()
	return TaskSummary{
		TaskID:         snap.TaskID,
		Kind:           snap.Kind,
		Status:         snap.Status,
		CompletedUnits: snap.CompletedUnits,
		TotalUnits:     snap.TotalUnits,
		CreatedAt:      snap.CreatedAt,
	}
}

// CancellationError indicates a cancel request against an already-terminal
// task
type CancellationError struct {
	TaskID string
	Status TaskStatus
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("task %s is already %s and cannot be cancelled", e.TaskID, e.Status)
}

// QueueFullError indicates the scheduler's queue is saturated and the
// submission was rejected
type QueueFullError struct {
	QueueSize int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("task queue is full (%d queued tasks)", e.QueueSize)
}

// UnknownTaskError indicates a task identifier with no record. Callers must
// treat a disappeared task as unknown, assume failed.
type UnknownTaskError struct {
	TaskID string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task: %s", e.TaskID)
}
