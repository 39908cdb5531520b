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
	"sort"

	"schemagate/platform/registry"
)

// subjectState is the per-subject view fetched from one side of a
// comparison. The latest schema body is kept so registries that hold the
// same version number with drifted content still diff.
type subjectState struct {
	LatestVersion int
	Schema        string
	SchemaType    string
	Compatibility string
}

// sideListing is the full listing fetched from one registry
type sideListing struct {
	Registry string
	Subjects map[string]subjectState
}

// ComparisonEngine fetches both sides of a comparison and diffs them. A
// failed fetch aborts the task; a diff computed from a partial listing
// would report phantom differences.
type ComparisonEngine struct {
	pool *registry.Pool
}

// NewComparisonEngine creates a comparison engine over the registry pool
func NewComparisonEngine(pool *registry.Pool) *ComparisonEngine {
	return &ComparisonEngine{pool: pool}
}

// ExecuteUnit fetches one side's subject listing with latest version and
// compatibility config per subject.
func (e *ComparisonEngine) ExecuteUnit(ctx context.Context, plan *Plan, unit WorkUnit) UnitResult {
	client, err := e.pool.Client(unit.Registry)
	if err != nil {
		return failure(unit, err)
	}

	subjects, err := client.ListSubjects(ctx, unit.Context)
	if err != nil {
		return failure(unit, fmt.Errorf("list %s subjects: %w", unit.Side, err))
	}

	listing := &sideListing{
		Registry: unit.Registry,
		Subjects: make(map[string]subjectState, len(subjects)),
	}
	for _, subject := range subjects {
		schema, err := client.GetSchema(ctx, unit.Context, subject, 0)
		if err != nil {
			return failure(unit, fmt.Errorf("fetch latest schema for %s: %w", subject, err))
		}
		state := subjectState{
			LatestVersion: schema.Version,
			Schema:        schema.Schema,
			SchemaType:    schema.SchemaType,
		}
		config, err := client.GetSubjectConfig(ctx, unit.Context, subject)
		switch {
		case err == nil:
			state.Compatibility = config.CompatibilityLevel
		case isNoConfigOverride(err):
			// No subject-level override; inherits the global default
		default:
			return failure(unit, fmt.Errorf("fetch config for %s: %w", subject, err))
		}
		listing.Subjects[subject] = state
	}

	return UnitResult{Unit: unit, Outcome: OutcomeSuccess, payload: listing}
}

// isNoConfigOverride reports whether a config lookup failed only because
// the subject carries no compatibility override. Every other failure is a
// real fetch error and fails the unit.
func isNoConfigOverride(err error) bool {
	var notFound *registry.NotFoundError
	return errors.As(err, &notFound)
}

// Finalize diffs the two fetched sides and attaches the result to the task
func (e *ComparisonEngine) Finalize(ctx context.Context, task *Task) error {
	var source, target *sideListing
	for _, result := range task.results() {
		listing, ok := result.payload.(*sideListing)
		if !ok {
			continue
		}
		switch result.Unit.Side {
		case SideSource:
			source = listing
		case SideTarget:
			target = listing
		}
	}
	if source == nil || target == nil {
		return fmt.Errorf("comparison is missing a side listing")
	}

	task.setComparison(&ComparisonResult{
		Source: source.Registry,
		Target: target.Registry,
		Diffs:  diffSides(source, target),
	})
	return nil
}

func diffSides(source, target *sideListing) []SubjectDiff {
	diffs := []SubjectDiff{}

	for subject, sourceState := range source.Subjects {
		targetState, ok := target.Subjects[subject]
		if !ok {
			diffs = append(diffs, SubjectDiff{Subject: subject, DiffKind: DiffMissingInTarget})
			continue
		}
		switch {
		case sourceState.LatestVersion != targetState.LatestVersion:
			diffs = append(diffs, SubjectDiff{
				Subject:  subject,
				DiffKind: DiffVersionMismatch,
				Detail: fmt.Sprintf("source latest v%d, target latest v%d",
					sourceState.LatestVersion, targetState.LatestVersion),
			})
		case sourceState.Schema != targetState.Schema || sourceState.SchemaType != targetState.SchemaType:
			diffs = append(diffs, SubjectDiff{
				Subject:  subject,
				DiffKind: DiffVersionMismatch,
				Detail:   fmt.Sprintf("latest version v%d holds different schema content on each side", sourceState.LatestVersion),
			})
		}
		if sourceState.Compatibility != targetState.Compatibility {
			diffs = append(diffs, SubjectDiff{
				Subject:  subject,
				DiffKind: DiffConfigMismatch,
				Detail: fmt.Sprintf("source compatibility %q, target compatibility %q",
					sourceState.Compatibility, targetState.Compatibility),
			})
		}
	}

	for subject := range target.Subjects {
		if _, ok := source.Subjects[subject]; !ok {
			diffs = append(diffs, SubjectDiff{Subject: subject, DiffKind: DiffMissingInSource})
		}
	}

	sort.Slice(diffs, func(i, j int) bool {
		if diffs[i].Subject != diffs[j].Subject {
			return diffs[i].Subject < diffs[j].Subject
		}
		return diffs[i].DiffKind < diffs[j].DiffKind
	})
	return diffs
}
