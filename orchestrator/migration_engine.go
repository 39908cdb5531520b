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

// MigrationEngine copies schema versions from a source registry/context to
// a target registry/context, one version per unit.
type MigrationEngine struct {
	pool *registry.Pool
}

// NewMigrationEngine creates a migration engine over the registry pool
func NewMigrationEngine(pool *registry.Pool) *MigrationEngine {
	return &MigrationEngine{pool: pool}
}

// ExecuteUnit migrates one (subject, version) pair. A unit failure is
// recorded and never aborts the task; remaining versions still migrate.
func (e *MigrationEngine) ExecuteUnit(ctx context.Context, plan *Plan, unit WorkUnit) UnitResult {
	source, err := e.pool.Client(unit.Registry)
	if err != nil {
		return failure(unit, err)
	}
	target, err := e.pool.Client(unit.TargetRegistry)
	if err != nil {
		return failure(unit, err)
	}

	schema, err := source.GetSchema(ctx, unit.Context, unit.Subject, unit.Version)
	if err != nil {
		return failure(unit, fmt.Errorf("fetch source schema: %w", err))
	}

	if !unit.Overwrite {
		skip, reason, err := e.shouldSkip(ctx, target, unit, schema)
		if err != nil {
			return failure(unit, err)
		}
		if skip {
			return UnitResult{Unit: unit, Outcome: OutcomeSkipped, Warning: reason}
		}
	}

	req := &registry.RegisterRequest{
		Schema:     schema.Schema,
		SchemaType: schema.SchemaType,
		References: schema.References,
	}
	priorMode := ""
	if unit.PreserveIDs {
		req.ID = schema.ID
		req.Version = schema.Version
		// Explicit IDs are only accepted in IMPORT mode. The subject must
		// leave IMPORT mode again afterwards or later normal registrations
		// against it are refused.
		priorMode = e.currentMode(ctx, target, unit)
		if err := target.SetMode(ctx, unit.TargetContext, unit.Subject, "IMPORT"); err != nil {
			var apiErr *registry.APIError
			if !errors.As(err, &apiErr) {
				return failure(unit, fmt.Errorf("set import mode on target: %w", err))
			}
		}
	}

	_, err = target.RegisterSchema(ctx, unit.TargetContext, unit.Subject, req)
	if err == nil {
		warning := ""
		if unit.PreserveIDs {
			warning = e.restoreMode(ctx, target, unit, priorMode)
		}
		return UnitResult{Unit: unit, Outcome: OutcomeSuccess, Warning: warning}
	}

	// ID preservation requires the target subject to be in IMPORT mode.
	// When the target refuses the explicit ID, fall back to letting it
	// assign one and surface the divergence as a warning.
	var rejection *registry.CompatibilityRejection
	if unit.PreserveIDs && (errors.As(err, &rejection) || isImportModeRefusal(err)) {
		req.ID = 0
		req.Version = 0
		if _, retryErr := target.RegisterSchema(ctx, unit.TargetContext, unit.Subject, req); retryErr == nil {
			warning := fmt.Sprintf("target refused explicit schema ID %d, registered with target-assigned ID", schema.ID)
			if w := e.restoreMode(ctx, target, unit, priorMode); w != "" {
				warning += "; " + w
			}
			return UnitResult{Unit: unit, Outcome: OutcomeSuccess, Warning: warning}
		}
	}

	if unit.PreserveIDs {
		// The unit already failed; a stuck IMPORT mode would compound it
		e.restoreMode(ctx, target, unit, priorMode)
	}
	return failure(unit, fmt.Errorf("register on target: %w", err))
}

// currentMode reads the target subject's mode before an IMPORT switch.
// Subjects without an override inherit the global default, which is
// READWRITE on a writable registry.
func (e *MigrationEngine) currentMode(ctx context.Context, target *registry.Client, unit WorkUnit) string {
	mode, err := target.GetMode(ctx, unit.TargetContext, unit.Subject)
	if err != nil || mode == "" {
		return "READWRITE"
	}
	return mode
}

// restoreMode puts the target subject back into its pre-migration mode.
// The schema is already registered at this point, so a failed restore is
// reported as a unit warning rather than a failure.
func (e *MigrationEngine) restoreMode(ctx context.Context, target *registry.Client, unit WorkUnit, priorMode string) string {
	if err := target.SetMode(ctx, unit.TargetContext, unit.Subject, priorMode); err != nil {
		return fmt.Sprintf("could not restore target mode %s after import: %v", priorMode, err)
	}
	return ""
}

// shouldSkip applies the no-overwrite policy: skip when the target already
// holds an identical schema for the subject, or when the target's latest
// version is at or past the source version.
func (e *MigrationEngine) shouldSkip(ctx context.Context, target *registry.Client, unit WorkUnit, schema *registry.Schema) (bool, string, error) {
	existing, err := target.GetSchema(ctx, unit.TargetContext, unit.Subject, 0)
	if err != nil {
		var notFound *registry.NotFoundError
		if errors.As(err, &notFound) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("probe target subject: %w", err)
	}
	if existing.Schema == schema.Schema && existing.SchemaType == schema.SchemaType {
		return true, "target already holds an identical schema", nil
	}
	if existing.Version >= schema.Version {
		return true, fmt.Sprintf("target version %d is at or past source version %d", existing.Version, schema.Version), nil
	}
	return false, "", nil
}

// Finalize is a no-op for migrations; every unit is self-contained
func (e *MigrationEngine) Finalize(ctx context.Context, task *Task) error {
	return nil
}

// isImportModeRefusal matches the backend's refusal to accept an explicit
// schema ID outside IMPORT mode, which arrives as a 422 rather than a 409.
func isImportModeRefusal(err error) bool {
	var apiErr *registry.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 422
}

func failure(unit WorkUnit, err error) UnitResult {
	return UnitResult{Unit: unit, Outcome: OutcomeFailure, Error: err.Error()}
}
