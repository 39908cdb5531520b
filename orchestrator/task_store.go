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
	"sort"
	"sync"
)

// DefaultMaxRetainedTasks bounds task history memory
const DefaultMaxRetainedTasks = 500

// TaskStore is the in-memory task registry. It is injected into the
// scheduler rather than held as a package singleton so tests construct a
// fresh one. There is no durable persistence: a restart loses task history.
type TaskStore struct {
	mu          sync.RWMutex
	tasks       map[string]*Task
	order       []string // insertion order, oldest first
	maxRetained int
}

// NewTaskStore creates a task store retaining at most maxRetained tasks.
// Pass 0 for the default cap.
func NewTaskStore(maxRetained int) *TaskStore {
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetainedTasks
	}
	return &TaskStore{
		tasks:       make(map[string]*Task),
		maxRetained: maxRetained,
	}
}

// Add inserts a task, evicting the oldest terminal tasks when the cap is
// exceeded. Non-terminal tasks are never evicted.
func (s *TaskStore) Add(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID()] = task
	s.order = append(s.order, task.ID())
	s.evictLocked()
}

// Remove deletes a task record (used when a submission is rejected after
// the task was provisionally stored)
func (s *TaskStore) Remove(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, taskID)
	for i, id := range s.order {
		if id == taskID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns the task for an identifier
func (s *TaskStore) Get(taskID string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	return task, ok
}

// Active returns summaries of all non-terminal tasks, oldest first
func (s *TaskStore) Active() []TaskSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []TaskSummary
	for _, id := range s.order {
		task := s.tasks[id]
		if task == nil {
			continue
		}
		if !task.statusLocked().IsTerminal() {
			active = append(active, task.Summary())
		}
	}
	return active
}

// All returns summaries of every retained task, newest first
func (s *TaskStore) All() []TaskSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]TaskSummary, 0, len(s.tasks))
	for _, task := range s.tasks {
		summaries = append(summaries, task.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries
}

// Len returns the number of retained tasks
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// evictLocked removes the oldest terminal tasks until the cap is met.
// Callers hold the write lock.
func (s *TaskStore) evictLocked() {
	if len(s.tasks) <= s.maxRetained {
		return
	}

	kept := s.order[:0]
	for _, id := range s.order {
		if len(s.tasks) <= s.maxRetained {
			kept = append(kept, id)
			continue
		}
		task := s.tasks[id]
		if task != nil && task.statusLocked().IsTerminal() {
			delete(s.tasks, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}
