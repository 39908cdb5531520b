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
	"errors"
	"fmt"

	"schemagate/platform/registry"
)

// CleanupEngine deletes subjects in batch across contexts. Unit failures
// are recorded and the remaining subjects are still attempted.
type CleanupEngine struct {
	pool *registry.Pool
}

// NewCleanupEngine creates a cleanup engine over the registry pool
func NewCleanupEngine(pool *registry.Pool) *CleanupEngine {
	return &CleanupEngine{pool: pool}
}

// ExecuteUnit deletes one subject. A subject that vanished between planning
// and execution counts as skipped, not failed.
func (e *CleanupEngine) ExecuteUnit(ctx context.Context, plan *Plan, unit WorkUnit) UnitResult {
	client, err := e.pool.Client(unit.Registry)
	if err != nil {
		return failure(unit, err)
	}

	if _, err := client.DeleteSubject(ctx, unit.Context, unit.Subject); err != nil {
		var notFound *registry.NotFoundError
		if errors.As(err, &notFound) {
			return UnitResult{Unit: unit, Outcome: OutcomeSkipped, Warning: "subject already gone"}
		}
		return failure(unit, err)
	}

	return UnitResult{Unit: unit, Outcome: OutcomeSuccess}
}

// Finalize deletes each emptied context when the plan asks for it. A
// context with any failed deletion is left in place so the failed subjects
// stay reachable.
func (e *CleanupEngine) Finalize(ctx context.Context, task *Task) error {
	plan := task.Plan()
	if !plan.DeleteContextAfter {
		return nil
	}

	failedByContext := map[string]int{}
	for _, result := range task.results() {
		if result.Outcome == OutcomeFailure {
			failedByContext[result.Unit.Context]++
		}
	}

	client, err := e.pool.Client(plan.Registry)
	if err != nil {
		return err
	}

	for _, contextName := range plan.Contexts {
		if contextName == "" || contextName == registry.DefaultContext {
			continue // default context is not deletable
		}
		if failedByContext[contextName] > 0 {
			continue
		}
		if err := client.DeleteContext(ctx, contextName); err != nil {
			var notFound *registry.NotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return fmt.Errorf("delete context %s: %w", contextName, err)
		}
	}
	return nil
}
