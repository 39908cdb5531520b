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
	"testing"

	"schemagate/platform/registry"
)

// runPlan drives a plan through a fresh single-worker scheduler
func runPlan(t *testing.T, pool *registry.Pool, plan *Plan) TaskSnapshot {
	t.Helper()

	s := NewScheduler(NewTaskStore(0), nil, SchedulerConfig{Workers: 1})
	s.Register(KindMigration, NewMigrationEngine(pool))
	s.Register(KindCleanup, NewCleanupEngine(pool))
	s.Register(KindComparison, NewComparisonEngine(pool))
	s.Start()
	t.Cleanup(func() { s.Stop(context.Background()) })

	taskID, err := s.Submit(plan, plan.Kind)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return waitTerminal(t, s, taskID)
}

func TestMigrationEndToEnd(t *testing.T) {
	source := newFakeRegistry()
	defer source.close()
	target := newFakeRegistry()
	defer target.close()

	source.addSchema("dev", "orders", `{"type":"string"}`)
	source.addSchema("dev", "orders", `{"type":"int"}`)
	source.addSchema("dev", "payments", `{"type":"long"}`)

	pool := testPool(t,
		&registry.Ref{Name: "src", BaseURL: source.srv.URL},
		&registry.Ref{Name: "dst", BaseURL: target.srv.URL},
	)
	planner := NewPlanner(pool)

	plan, err := planner.PlanMigration(context.Background(), MigrationRequest{
		SourceRegistry: "src",
		TargetRegistry: "dst",
		SourceContext:  "dev",
		TargetContext:  "dev",
	})
	if err != nil {
		t.Fatalf("PlanMigration: %v", err)
	}

	snap := runPlan(t, pool, plan)
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", snap.Status, snap.FailureReason)
	}
	for _, r := range snap.UnitResults {
		if r.Outcome != OutcomeSuccess {
			t.Errorf("unit %s: outcome %s (%s)", r.Unit.Description(), r.Outcome, r.Error)
		}
	}
	if got := target.schemaCount("dev", "orders"); got != 2 {
		t.Errorf("target holds %d orders versions, want 2", got)
	}
	if got := target.schemaCount("dev", "payments"); got != 1 {
		t.Errorf("target holds %d payments versions, want 1", got)
	}
}

// Re-running a finished migration must change nothing on the target
func TestMigrationRerunSkipsEverything(t *testing.T) {
	source := newFakeRegistry()
	defer source.close()
	target := newFakeRegistry()
	defer target.close()

	source.addSchema("dev", "orders", `{"type":"string"}`)
	source.addSchema("dev", "orders", `{"type":"int"}`)

	pool := testPool(t,
		&registry.Ref{Name: "src", BaseURL: source.srv.URL},
		&registry.Ref{Name: "dst", BaseURL: target.srv.URL},
	)
	planner := NewPlanner(pool)
	req := MigrationRequest{
		SourceRegistry: "src",
		TargetRegistry: "dst",
		SourceContext:  "dev",
		TargetContext:  "dev",
	}

	plan, err := planner.PlanMigration(context.Background(), req)
	if err != nil {
		t.Fatalf("PlanMigration: %v", err)
	}
	if snap := runPlan(t, pool, plan); snap.Status != StatusCompleted {
		t.Fatalf("first run status = %s", snap.Status)
	}

	rerun, err := planner.PlanMigration(context.Background(), req)
	if err != nil {
		t.Fatalf("PlanMigration rerun: %v", err)
	}
	snap := runPlan(t, pool, rerun)
	if snap.Status != StatusCompleted {
		t.Fatalf("rerun status = %s", snap.Status)
	}
	for _, r := range snap.UnitResults {
		if r.Outcome != OutcomeSkipped {
			t.Errorf("rerun unit %s: outcome %s, want skipped", r.Unit.Description(), r.Outcome)
		}
	}
	if got := target.schemaCount("dev", "orders"); got != 2 {
		t.Errorf("rerun changed the target: %d versions", got)
	}
}

func TestMigrationPreserveIDFallback(t *testing.T) {
	source := newFakeRegistry()
	defer source.close()
	target := newFakeRegistry()
	defer target.close()
	target.rejectIDs = true

	seeded := source.addSchema("dev", "orders", `{"type":"string"}`)

	pool := testPool(t,
		&registry.Ref{Name: "src", BaseURL: source.srv.URL},
		&registry.Ref{Name: "dst", BaseURL: target.srv.URL},
	)

	plan, err := NewPlanner(pool).PlanMigration(context.Background(), MigrationRequest{
		SourceRegistry: "src",
		TargetRegistry: "dst",
		SourceContext:  "dev",
		TargetContext:  "dev",
		PreserveIDs:    true,
	})
	if err != nil {
		t.Fatalf("PlanMigration: %v", err)
	}

	snap := runPlan(t, pool, plan)
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", snap.Status, snap.FailureReason)
	}
	if len(snap.UnitResults) != 1 {
		t.Fatalf("got %d results", len(snap.UnitResults))
	}
	result := snap.UnitResults[0]
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s (%s)", result.Outcome, result.Error)
	}
	if result.Warning == "" {
		t.Errorf("no warning recorded for schema %d losing its ID", seeded.ID)
	}
	if got := target.schemaCount("dev", "orders"); got != 1 {
		t.Errorf("target holds %d versions, want 1", got)
	}
}

// An ID-preserving migration must not leave the target subject parked in
// IMPORT mode once the schema is registered
func TestMigrationPreserveIDsRestoresMode(t *testing.T) {
	source := newFakeRegistry()
	defer source.close()
	target := newFakeRegistry()
	defer target.close()

	source.addSchema("dev", "orders", `{"type":"string"}`)

	pool := testPool(t,
		&registry.Ref{Name: "src", BaseURL: source.srv.URL},
		&registry.Ref{Name: "dst", BaseURL: target.srv.URL},
	)

	plan, err := NewPlanner(pool).PlanMigration(context.Background(), MigrationRequest{
		SourceRegistry: "src",
		TargetRegistry: "dst",
		SourceContext:  "dev",
		TargetContext:  "dev",
		PreserveIDs:    true,
	})
	if err != nil {
		t.Fatalf("PlanMigration: %v", err)
	}

	snap := runPlan(t, pool, plan)
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", snap.Status, snap.FailureReason)
	}
	if got := target.schemaCount("dev", "orders"); got != 1 {
		t.Fatalf("target holds %d versions, want 1", got)
	}
	if mode := target.mode("dev", "orders"); mode != "READWRITE" {
		t.Errorf("target subject mode = %q after migration, want READWRITE", mode)
	}
}

func TestMigrationPartialFailureContinues(t *testing.T) {
	source := newFakeRegistry()
	defer source.close()
	target := newFakeRegistry()
	defer target.close()

	source.addSchema("dev", "orders", `{"type":"string"}`)
	source.addSchema("dev", "payments", `{"type":"long"}`)

	pool := testPool(t,
		&registry.Ref{Name: "src", BaseURL: source.srv.URL},
		&registry.Ref{Name: "dst", BaseURL: target.srv.URL},
	)

	plan, err := NewPlanner(pool).PlanMigration(context.Background(), MigrationRequest{
		SourceRegistry: "src",
		TargetRegistry: "dst",
		SourceContext:  "dev",
		TargetContext:  "dev",
	})
	if err != nil {
		t.Fatalf("PlanMigration: %v", err)
	}

	// Drop the first subject from the source between planning and execution
	source.mu.Lock()
	delete(source.versions, subjectKey("dev", "orders"))
	source.mu.Unlock()

	snap := runPlan(t, pool, plan)
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed despite a unit failure", snap.Status)
	}

	counts := map[Outcome]int{}
	for _, r := range snap.UnitResults {
		counts[r.Outcome]++
	}
	if counts[OutcomeFailure] != 1 || counts[OutcomeSuccess] != 1 {
		t.Errorf("outcomes = %v, want one failure and one success", counts)
	}
	if got := target.schemaCount("dev", "payments"); got != 1 {
		t.Errorf("surviving subject was not migrated")
	}
}

func TestCleanupEndToEnd(t *testing.T) {
	backend := newFakeRegistry()
	defer backend.close()

	for _, subject := range []string{"a", "b", "c", "d"} {
		backend.addSchema("staging", subject, `{"type":"string"}`)
	}
	backend.addSchema("qa", "e", `{"type":"string"}`)
	backend.failDelete("staging", "c")

	pool := testPool(t, &registry.Ref{Name: "main", BaseURL: backend.srv.URL})

	plan, err := NewPlanner(pool).PlanCleanup(context.Background(), CleanupRequest{
		Registry:           "main",
		Contexts:           []string{"staging", "qa"},
		DeleteContextAfter: true,
	})
	if err != nil {
		t.Fatalf("PlanCleanup: %v", err)
	}

	snap := runPlan(t, pool, plan)
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed despite one failed deletion", snap.Status)
	}

	counts := map[Outcome]int{}
	for _, r := range snap.UnitResults {
		counts[r.Outcome]++
	}
	if counts[OutcomeSuccess] != 4 || counts[OutcomeFailure] != 1 {
		t.Errorf("outcomes = %v, want 4 successes and 1 failure", counts)
	}

	// qa emptied cleanly and is deleted; staging kept its failed subject
	if !backend.contextDeleted("qa") {
		t.Error("qa context not deleted")
	}
	if backend.contextDeleted("staging") {
		t.Error("staging context deleted despite a failed subject deletion")
	}
	if got := backend.schemaCount("staging", "c"); got == 0 {
		t.Error("failed subject vanished from the backend")
	}
}

func TestCleanupAlreadyGoneIsSkipped(t *testing.T) {
	backend := newFakeRegistry()
	defer backend.close()

	backend.addSchema("staging", "orders", `{"type":"string"}`)

	pool := testPool(t, &registry.Ref{Name: "main", BaseURL: backend.srv.URL})

	plan, err := NewPlanner(pool).PlanCleanup(context.Background(), CleanupRequest{
		Registry: "main",
		Contexts: []string{"staging"},
	})
	if err != nil {
		t.Fatalf("PlanCleanup: %v", err)
	}

	// Subject disappears between planning and execution
	backend.mu.Lock()
	delete(backend.versions, subjectKey("staging", "orders"))
	backend.mu.Unlock()

	snap := runPlan(t, pool, plan)
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s", snap.Status)
	}
	if len(snap.UnitResults) != 1 || snap.UnitResults[0].Outcome != OutcomeSkipped {
		t.Errorf("results = %+v, want one skipped unit", snap.UnitResults)
	}
}

func TestComparisonEndToEnd(t *testing.T) {
	left := newFakeRegistry()
	defer left.close()
	right := newFakeRegistry()
	defer right.close()

	// only-left: missing in target
	left.addSchema("dev", "only-left", `{"type":"string"}`)
	// only-right: missing in source
	right.addSchema("dev", "only-right", `{"type":"string"}`)
	// drifted: latest version differs
	left.addSchema("dev", "drifted", `{"type":"string"}`)
	left.addSchema("dev", "drifted", `{"type":"int"}`)
	right.addSchema("dev", "drifted", `{"type":"string"}`)
	// rewritten: same latest version, different content
	left.addSchema("dev", "rewritten", `{"type":"string"}`)
	right.addSchema("dev", "rewritten", `{"type":"int"}`)
	// configured: compatibility differs
	left.addSchema("dev", "configured", `{"type":"string"}`)
	right.addSchema("dev", "configured", `{"type":"string"}`)
	left.setConfig("dev", "configured", "BACKWARD")
	right.setConfig("dev", "configured", "FULL")
	// aligned: no diff
	left.addSchema("dev", "aligned", `{"type":"string"}`)
	right.addSchema("dev", "aligned", `{"type":"string"}`)

	pool := testPool(t,
		&registry.Ref{Name: "left", BaseURL: left.srv.URL},
		&registry.Ref{Name: "right", BaseURL: right.srv.URL},
	)

	plan, err := NewPlanner(pool).PlanComparison(ComparisonRequest{
		SourceRegistry: "left",
		TargetRegistry: "right",
		Context:        "dev",
	})
	if err != nil {
		t.Fatalf("PlanComparison: %v", err)
	}

	snap := runPlan(t, pool, plan)
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", snap.Status, snap.FailureReason)
	}
	if snap.Comparison == nil {
		t.Fatal("no comparison result attached")
	}
	if snap.Comparison.Source != "left" || snap.Comparison.Target != "right" {
		t.Errorf("sides = %s/%s", snap.Comparison.Source, snap.Comparison.Target)
	}

	want := map[string]DiffKind{
		"only-left":  DiffMissingInTarget,
		"only-right": DiffMissingInSource,
		"drifted":    DiffVersionMismatch,
		"rewritten":  DiffVersionMismatch,
		"configured": DiffConfigMismatch,
	}
	if len(snap.Comparison.Diffs) != len(want) {
		t.Fatalf("diffs = %+v, want %d entries", snap.Comparison.Diffs, len(want))
	}
	for _, diff := range snap.Comparison.Diffs {
		if want[diff.Subject] != diff.DiffKind {
			t.Errorf("subject %s: diff %s, want %s", diff.Subject, diff.DiffKind, want[diff.Subject])
		}
	}

	// Diffs are sorted by subject
	for i := 1; i < len(snap.Comparison.Diffs); i++ {
		if snap.Comparison.Diffs[i-1].Subject > snap.Comparison.Diffs[i].Subject {
			t.Errorf("diffs not sorted: %s before %s",
				snap.Comparison.Diffs[i-1].Subject, snap.Comparison.Diffs[i].Subject)
		}
	}
}

// Swapping the two sides inverts the missing_in labels but the set of
// differing subjects stays the same
func TestComparisonSymmetry(t *testing.T) {
	left := newFakeRegistry()
	defer left.close()
	right := newFakeRegistry()
	defer right.close()

	left.addSchema("dev", "only-left", `{"type":"string"}`)
	right.addSchema("dev", "only-right", `{"type":"string"}`)
	left.addSchema("dev", "drifted", `{"type":"string"}`)
	left.addSchema("dev", "drifted", `{"type":"int"}`)
	right.addSchema("dev", "drifted", `{"type":"string"}`)

	pool := testPool(t,
		&registry.Ref{Name: "left", BaseURL: left.srv.URL},
		&registry.Ref{Name: "right", BaseURL: right.srv.URL},
	)
	planner := NewPlanner(pool)

	compare := func(source, target string) map[string]DiffKind {
		plan, err := planner.PlanComparison(ComparisonRequest{
			SourceRegistry: source,
			TargetRegistry: target,
			Context:        "dev",
		})
		if err != nil {
			t.Fatalf("PlanComparison(%s, %s): %v", source, target, err)
		}
		snap := runPlan(t, pool, plan)
		if snap.Status != StatusCompleted {
			t.Fatalf("status = %s (%s)", snap.Status, snap.FailureReason)
		}
		kinds := map[string]DiffKind{}
		for _, diff := range snap.Comparison.Diffs {
			kinds[diff.Subject] = diff.DiffKind
		}
		return kinds
	}

	forward := compare("left", "right")
	reverse := compare("right", "left")

	if len(forward) != len(reverse) {
		t.Fatalf("differing subject sets diverge: %v vs %v", forward, reverse)
	}
	for subject := range forward {
		if _, ok := reverse[subject]; !ok {
			t.Errorf("subject %s differs in one direction only", subject)
		}
	}

	if forward["only-left"] != DiffMissingInTarget || reverse["only-left"] != DiffMissingInSource {
		t.Errorf("only-left labels: forward %s, reverse %s", forward["only-left"], reverse["only-left"])
	}
	if forward["only-right"] != DiffMissingInSource || reverse["only-right"] != DiffMissingInTarget {
		t.Errorf("only-right labels: forward %s, reverse %s", forward["only-right"], reverse["only-right"])
	}
	if forward["drifted"] != DiffVersionMismatch || reverse["drifted"] != DiffVersionMismatch {
		t.Errorf("drifted labels: forward %s, reverse %s", forward["drifted"], reverse["drifted"])
	}
}

// A failing config lookup is a fetch failure like any other. Treating it
// as an absent override would complete the task with a phantom
// config_mismatch instead of failing it.
func TestComparisonConfigFetchFailureFails(t *testing.T) {
	left := newFakeRegistry()
	defer left.close()
	right := newFakeRegistry()
	defer right.close()

	left.addSchema("dev", "orders", `{"type":"string"}`)
	right.addSchema("dev", "orders", `{"type":"string"}`)
	left.setConfig("dev", "orders", "BACKWARD")
	right.setConfig("dev", "orders", "BACKWARD")
	right.failConfig("dev", "orders")

	pool := testPool(t,
		&registry.Ref{Name: "left", BaseURL: left.srv.URL},
		&registry.Ref{Name: "right", BaseURL: right.srv.URL},
	)

	plan, err := NewPlanner(pool).PlanComparison(ComparisonRequest{
		SourceRegistry: "left",
		TargetRegistry: "right",
		Context:        "dev",
	})
	if err != nil {
		t.Fatalf("PlanComparison: %v", err)
	}

	snap := runPlan(t, pool, plan)
	if snap.Status != StatusFailed {
		t.Fatalf("status = %s, want failed on a config fetch error", snap.Status)
	}
	if snap.Comparison != nil {
		t.Error("comparison result attached to a failed task")
	}
}

func TestComparisonUnreachableSideFails(t *testing.T) {
	left := newFakeRegistry()
	defer left.close()
	right := newFakeRegistry()

	left.addSchema("dev", "orders", `{"type":"string"}`)

	pool := testPool(t,
		&registry.Ref{Name: "left", BaseURL: left.srv.URL},
		&registry.Ref{Name: "right", BaseURL: right.srv.URL},
	)

	plan, err := NewPlanner(pool).PlanComparison(ComparisonRequest{
		SourceRegistry: "left",
		TargetRegistry: "right",
		Context:        "dev",
	})
	if err != nil {
		t.Fatalf("PlanComparison: %v", err)
	}

	right.close() // target side now unreachable

	snap := runPlan(t, pool, plan)
	if snap.Status != StatusFailed {
		t.Fatalf("status = %s, want failed (no partial comparisons)", snap.Status)
	}
	if snap.Comparison != nil {
		t.Error("comparison result attached to a failed task")
	}
}
