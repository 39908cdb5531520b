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

/*
Package orchestrator implements asynchronous task execution for
schema-registry operations.

# Overview

Long-running operations are modeled as tasks. A task carries an immutable
Plan, an ordered list of WorkUnits enumerated up front by the Planner, and
is executed by one worker of the Scheduler's bounded pool:

	Request → Planner → Plan → Scheduler → Engine (per unit) → Finalize

Three engines execute the three task kinds:

  - MigrationEngine copies schema versions between registries, preserving
    schema type, references and (best effort) schema IDs
  - ComparisonEngine fetches both sides and computes per-subject diffs
  - CleanupEngine deletes subjects in batch and optionally empty contexts

# Task Lifecycle

	pending → running → completed | failed | cancelled

Cancellation is cooperative: Cancel sets a flag that workers check before
each unit, so an in-flight registry call always finishes and remote state
is never left half-written. A running task with a pending cancellation
request reports the derived "cancelling" status to pollers.

Migration and cleanup tolerate unit failures and keep going; comparison
aborts on the first failure because a partial diff is misleading.

# Progress

Progress returns a point-in-time snapshot (status, completed/total units,
partial unit results) without blocking on the executing worker. Finished
tasks are retained in a capped in-memory store; the oldest terminal records
are evicted first and running tasks are never evicted.

# Thread Safety

Scheduler, TaskStore and Task are safe for concurrent use. Plans and
WorkUnits are immutable after planning.
*/
package orchestrator
