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
Command gateway runs the SchemaGate gateway service.

The gateway is the control plane for schema-registry operations: it plans
and executes cross-registry migrations, registry comparisons and batch
cleanups as asynchronous, cancellable tasks.

# Usage

	gateway

# Environment Variables

Required:
  - REGISTRIES_FILE: path to the registries YAML file (default: registries.yaml)

Optional:
  - PORT: HTTP server port (default: 8080)
  - WORKER_COUNT: task worker pool size (default: 4)
  - QUEUE_SIZE: pending task queue bound (default: 64)
  - TASK_RETENTION: max retained task records (default: 500)
  - REDIS_URL: redis endpoint for submission rate limiting
  - SUBMIT_LIMIT_PER_MINUTE: submission rate limit (default: 60)

# Example

	export REGISTRIES_FILE="/etc/schemagate/registries.yaml"
	export REDIS_URL="redis://localhost:6379"
	./gateway
*/
package main

import "schemagate/platform/gateway"

func main() {
	gateway.Run()
}
