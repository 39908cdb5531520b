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
	"fmt"
	"sort"
	"time"

	"schemagate/platform/registry"
)

// Version selection policies for migration planning
const (
	VersionsAll      = "all"
	VersionsLatest   = "latest"
	VersionsExplicit = "explicit"
)

// MigrationRequest describes a cross-registry/context migration
type MigrationRequest struct {
	SourceRegistry string   `json:"source_registry"`
	TargetRegistry string   `json:"target_registry"`
	SourceContext  string   `json:"source_context"`
	TargetContext  string   `json:"target_context"`
	Subjects       []string `json:"subjects,omitempty"` // optional filter
	VersionPolicy  string   `json:"version_policy"`     // all | latest | explicit
	Version        int      `json:"version,omitempty"`  // required for explicit
	Overwrite      bool     `json:"overwrite"`
	PreserveIDs    bool     `json:"preserve_ids"`
	DryRun         bool     `json:"dry_run"`
}

// CleanupRequest describes a multi-context batch deletion
type CleanupRequest struct {
	Registry           string   `json:"registry"`
	Contexts           []string `json:"contexts"`
	DeleteContextAfter bool     `json:"delete_context_after"`
	DryRun             bool     `json:"dry_run"`
}

// ComparisonRequest describes a registry-to-registry comparison
type ComparisonRequest struct {
	SourceRegistry string `json:"source_registry"`
	TargetRegistry string `json:"target_registry"`
	Context        string `json:"context"`
}

// BadRequestError indicates a malformed planning request
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

// Planner enumerates requests into Plans. It only issues read-only listing
// calls and never mutates remote state; the Plan it produces is identical
// whether the caller asked for a dry run or a real run.
type Planner struct {
	pool *registry.Pool
}

// NewPlanner creates a planner over the registry pool
func NewPlanner(pool *registry.Pool) *Planner {
	return &Planner{pool: pool}
}

// PlanMigration enumerates one migrate unit per (subject, version)
func (p *Planner) PlanMigration(ctx context.Context, req MigrationRequest) (*Plan, error) {
	if req.VersionPolicy == "" {
		req.VersionPolicy = VersionsAll
	}
	if req.VersionPolicy != VersionsAll && req.VersionPolicy != VersionsLatest && req.VersionPolicy != VersionsExplicit {
		return nil, &BadRequestError{Message: fmt.Sprintf("unknown version policy: %s", req.VersionPolicy)}
	}
	if req.VersionPolicy == VersionsExplicit && req.Version <= 0 {
		return nil, &BadRequestError{Message: "explicit version policy requires a positive version"}
	}

	sourceRef, err := p.pool.Resolve(req.SourceRegistry)
	if err != nil {
		return nil, err
	}
	targetRef, err := p.pool.Resolve(req.TargetRegistry)
	if err != nil {
		return nil, err
	}
	if sourceRef.Name == targetRef.Name && req.SourceContext == req.TargetContext {
		return nil, &BadRequestError{Message: "source and target are the same registry and context"}
	}
	if targetRef.ReadOnly {
		return nil, &registry.ReadOnlyError{Registry: targetRef.Name, Operation: "migration"}
	}

	sourceClient, err := p.pool.Client(sourceRef.Name)
	if err != nil {
		return nil, err
	}

	subjects := req.Subjects
	if len(subjects) == 0 {
		subjects, err = sourceClient.ListSubjects(ctx, req.SourceContext)
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(subjects)

	var units []WorkUnit
	versionTotal := 0
	for _, subject := range subjects {
		versions, err := p.selectVersions(ctx, sourceClient, req, subject)
		if err != nil {
			return nil, err
		}
		for _, version := range versions {
			units = append(units, WorkUnit{
				Type:           UnitMigrateSchema,
				Registry:       sourceRef.Name,
				Context:        req.SourceContext,
				Subject:        subject,
				Version:        version,
				TargetRegistry: targetRef.Name,
				TargetContext:  req.TargetContext,
				Overwrite:      req.Overwrite,
				PreserveIDs:    req.PreserveIDs,
			})
			versionTotal++
		}
	}

	return &Plan{
		Kind:       KindMigration,
		Units:      units,
		TotalUnits: len(units),
		CreatedAt:  time.Now().UTC(),
		DryRun:     req.DryRun,
		Summary: fmt.Sprintf("%d subjects, %d versions, %s/%s -> %s/%s",
			len(subjects), versionTotal,
			sourceRef.Name, displayContext(req.SourceContext),
			targetRef.Name, displayContext(req.TargetContext)),
	}, nil
}

func (p *Planner) selectVersions(ctx context.Context, client *registry.Client, req MigrationRequest, subject string) ([]int, error) {
	switch req.VersionPolicy {
	case VersionsExplicit:
		return []int{req.Version}, nil
	case VersionsLatest:
		versions, err := client.ListVersions(ctx, req.SourceContext, subject)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, nil
		}
		sort.Ints(versions)
		return versions[len(versions)-1:], nil
	default: // all
		versions, err := client.ListVersions(ctx, req.SourceContext, subject)
		if err != nil {
			return nil, err
		}
		sort.Ints(versions)
		return versions, nil
	}
}

// PlanCleanup enumerates one delete unit per subject per context. Deletion
// removes all versions of a subject in one remote call, so unit granularity
// is per subject.
func (p *Planner) PlanCleanup(ctx context.Context, req CleanupRequest) (*Plan, error) {
	if len(req.Contexts) == 0 {
		return nil, &BadRequestError{Message: "cleanup requires at least one context"}
	}

	ref, err := p.pool.Resolve(req.Registry)
	if err != nil {
		return nil, err
	}
	if ref.ReadOnly {
		return nil, &registry.ReadOnlyError{Registry: ref.Name, Operation: "cleanup"}
	}

	client, err := p.pool.Client(ref.Name)
	if err != nil {
		return nil, err
	}

	var units []WorkUnit
	for _, contextName := range req.Contexts {
		subjects, err := client.ListSubjects(ctx, contextName)
		if err != nil {
			return nil, err
		}
		sort.Strings(subjects)
		for _, subject := range subjects {
			units = append(units, WorkUnit{
				Type:     UnitDeleteSubject,
				Registry: ref.Name,
				Context:  contextName,
				Subject:  subject,
			})
		}
	}

	return &Plan{
		Kind:               KindCleanup,
		Units:              units,
		TotalUnits:         len(units),
		CreatedAt:          time.Now().UTC(),
		DryRun:             req.DryRun,
		Registry:           ref.Name,
		Contexts:           req.Contexts,
		DeleteContextAfter: req.DeleteContextAfter,
		Summary: fmt.Sprintf("%d subjects across %d contexts on %s",
			len(units), len(req.Contexts), ref.Name),
	}, nil
}

// PlanComparison produces exactly two fetch units, one per side. It issues
// no registry calls at planning time.
func (p *Planner) PlanComparison(req ComparisonRequest) (*Plan, error) {
	sourceRef, err := p.pool.Resolve(req.SourceRegistry)
	if err != nil {
		return nil, err
	}
	targetRef, err := p.pool.Resolve(req.TargetRegistry)
	if err != nil {
		return nil, err
	}
	if sourceRef.Name == targetRef.Name {
		return nil, &BadRequestError{Message: "comparison requires two distinct registries"}
	}

	units := []WorkUnit{
		{Type: UnitFetchSide, Registry: sourceRef.Name, Context: req.Context, Side: SideSource},
		{Type: UnitFetchSide, Registry: targetRef.Name, Context: req.Context, Side: SideTarget},
	}

	return &Plan{
		Kind:       KindComparison,
		Units:      units,
		TotalUnits: len(units),
		CreatedAt:  time.Now().UTC(),
		Summary: fmt.Sprintf("compare %s and %s in context %s",
			sourceRef.Name, targetRef.Name, displayContext(req.Context)),
	}, nil
}
