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

// Package sdk provides retry utilities shared by registry clients.
//
// # Retry Logic
//
// RetryWithBackoff retries transient failures with exponential backoff and
// jitter. Errors are classified with RetryableError and NonRetryableError
// wrappers, or heuristically via DefaultRetryCondition:
//
//	result, err := sdk.RetryWithBackoff(ctx, sdk.DefaultRetryConfig(), func() (*Schema, error) {
//	    return client.GetSchema(ctx, "dev", "orders", 1)
//	})
//
// Exhausted retries return a RetryError carrying the attempt count and the
// last underlying error.
package sdk
