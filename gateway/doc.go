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
Package gateway provides the SchemaGate gateway service - the HTTP control
plane for asynchronous schema-registry operations.

# Overview

The gateway receives operation requests, plans them into work units and
hands them to the task scheduler for background execution:

  - Cross-registry schema migrations (per subject, per version)
  - Registry-to-registry comparisons with structured diffs
  - Batch cleanup of subjects across registry contexts

Submissions return a task identifier immediately; callers poll task
progress and may request cooperative cancellation at any time.

# API

Task submission:

	POST /api/v1/migrations   - plan and run a migration (dry_run previews)
	POST /api/v1/cleanups     - plan and run a batch cleanup (dry_run previews)
	POST /api/v1/comparisons  - compare two registries

Task lifecycle:

	GET  /api/v1/tasks        - active task summaries
	GET  /api/v1/tasks/{id}   - progress snapshot with partial unit results
	POST /api/v1/tasks/{id}/cancel - request cooperative cancellation

Operations:

	GET /health  - liveness
	GET /ready   - per-registry reachability
	GET /metrics - Prometheus metrics

# Rate Limiting

Submission endpoints are rate limited per caller through a redis-backed
sliding window. When redis is not configured or unreachable the limiter
fails open.

# Usage

	// Start the gateway service
	gateway.Run()

	// The gateway reads configuration from environment variables:
	// PORT            - HTTP server port (default: 8080)
	// REGISTRIES_FILE - registries YAML path (default: registries.yaml)
	// WORKER_COUNT    - task worker pool size (default: 4)
	// QUEUE_SIZE      - pending task queue bound (default: 64)
	// TASK_RETENTION  - max retained task records (default: 500)
	// REDIS_URL       - redis endpoint for rate limiting (optional)

# Thread Safety

All exported types in this package are safe for concurrent use. Handler
state lives in the injected pool, scheduler and task store, each of which
carries its own synchronization.
*/
package gateway
