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
Package logger provides structured JSON logging for SchemaGate components.

# Overview

The logger outputs one JSON object per line to stdout, making logs easily
consumable by CloudWatch, ELK, or other log aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (gateway, scheduler, etc.)
  - Hostname (for distributed tracing)
  - Task ID (for task correlation)
  - Request ID (for request correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("scheduler")

Log messages with task and request context:

	log.Info(taskID, requestID, "task submitted", map[string]interface{}{
		"kind": "migration",
	})

	log.ErrorWithErr(taskID, "", "unit failed", err, nil)
*/
package logger
