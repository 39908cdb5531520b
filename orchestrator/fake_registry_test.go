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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"schemagate/platform/registry"
	"schemagate/platform/registry/sdk"
)

// fakeRegistry is an in-memory schema registry backend for tests. It speaks
// just enough of the REST surface the client uses: context-qualified
// subject names, version listings, registration, deletion, config and mode.
type fakeRegistry struct {
	mu sync.Mutex

	// versions keyed by "context\x00subject"
	versions map[string][]registry.Schema
	configs  map[string]string
	modes    map[string]string

	deletedContexts []string
	failingSubjects map[string]bool // DeleteSubject answers 500
	failingConfigs  map[string]bool // GetSubjectConfig answers 500
	rejectIDs       bool            // explicit-ID registration answers 422
	nextID          int

	srv *httptest.Server
}

func newFakeRegistry() *fakeRegistry {
	f := &fakeRegistry{
		versions:        make(map[string][]registry.Schema),
		configs:         make(map[string]string),
		modes:           make(map[string]string),
		failingSubjects: make(map[string]bool),
		failingConfigs:  make(map[string]bool),
		nextID:          1,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeRegistry) close() {
	f.srv.Close()
}

func subjectKey(contextName, subject string) string {
	if contextName == "" {
		contextName = "."
	}
	return contextName + "\x00" + subject
}

// addSchema registers a schema version directly into the backing store
func (f *fakeRegistry) addSchema(contextName, subject, schemaBody string) registry.Schema {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := subjectKey(contextName, subject)
	schema := registry.Schema{
		Subject:    subject,
		Version:    len(f.versions[key]) + 1,
		ID:         f.nextID,
		SchemaType: "AVRO",
		Schema:     schemaBody,
	}
	f.nextID++
	f.versions[key] = append(f.versions[key], schema)
	return schema
}

func (f *fakeRegistry) setConfig(contextName, subject, compatibility string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[subjectKey(contextName, subject)] = compatibility
}

func (f *fakeRegistry) failDelete(contextName, subject string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failingSubjects[subjectKey(contextName, subject)] = true
}

func (f *fakeRegistry) failConfig(contextName, subject string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failingConfigs[subjectKey(contextName, subject)] = true
}

func (f *fakeRegistry) mode(contextName, subject string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modes[subjectKey(contextName, subject)]
}

func (f *fakeRegistry) contextDeleted(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.deletedContexts {
		if c == name {
			return true
		}
	}
	return false
}

func (f *fakeRegistry) schemaCount(contextName, subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.versions[subjectKey(contextName, subject)])
}

// splitQualified decomposes ":.ctx:subject" into its context and subject;
// bare names belong to the default context.
func splitQualified(name string) (string, string) {
	if strings.HasPrefix(name, ":.") {
		rest := name[2:]
		if idx := strings.Index(rest, ":"); idx >= 0 {
			return rest[:idx], rest[idx+1:]
		}
	}
	return ".", name
}

func qualifyKey(key string) string {
	parts := strings.SplitN(key, "\x00", 2)
	if parts[0] == "." {
		return parts[1]
	}
	return fmt.Sprintf(":.%s:%s", parts[0], parts[1])
}

func (f *fakeRegistry) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/subjects" && r.Method == http.MethodGet:
		f.listSubjects(w, r)
	case strings.HasPrefix(path, "/subjects/") && strings.HasSuffix(path, "/versions") && r.Method == http.MethodGet:
		f.listVersions(w, strings.TrimSuffix(strings.TrimPrefix(path, "/subjects/"), "/versions"))
	case strings.HasPrefix(path, "/subjects/") && strings.Contains(path, "/versions/") && r.Method == http.MethodGet:
		parts := strings.SplitN(strings.TrimPrefix(path, "/subjects/"), "/versions/", 2)
		f.getSchema(w, parts[0], parts[1])
	case strings.HasPrefix(path, "/subjects/") && strings.HasSuffix(path, "/versions") && r.Method == http.MethodPost:
		f.register(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/subjects/"), "/versions"))
	case strings.HasPrefix(path, "/subjects/") && r.Method == http.MethodDelete:
		f.deleteSubject(w, strings.TrimPrefix(path, "/subjects/"))
	case strings.HasPrefix(path, "/config/") && r.Method == http.MethodGet:
		f.getConfig(w, strings.TrimPrefix(path, "/config/"))
	case strings.HasPrefix(path, "/mode/") && r.Method == http.MethodGet:
		f.getMode(w, strings.TrimPrefix(path, "/mode/"))
	case strings.HasPrefix(path, "/mode/") && r.Method == http.MethodPut:
		f.setMode(w, r, strings.TrimPrefix(path, "/mode/"))
	case strings.HasPrefix(path, "/contexts/") && r.Method == http.MethodDelete:
		f.deletedContexts = append(f.deletedContexts, strings.TrimPrefix(path, "/contexts/"))
		writeJSON(w, http.StatusOK, map[string]string{})
	default:
		registryError(w, http.StatusNotFound, 40401, "unhandled path "+path)
	}
}

func (f *fakeRegistry) listSubjects(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("subjectPrefix")

	names := []string{}
	for key, versions := range f.versions {
		if len(versions) == 0 {
			continue
		}
		qualified := qualifyKey(key)
		switch {
		case prefix == ":*:":
			names = append(names, qualified)
		case prefix == ":.:":
			if !strings.HasPrefix(qualified, ":.") {
				names = append(names, qualified)
			}
		default:
			if strings.HasPrefix(qualified, prefix) {
				names = append(names, qualified)
			}
		}
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

func (f *fakeRegistry) listVersions(w http.ResponseWriter, qualified string) {
	contextName, subject := splitQualified(qualified)
	versions := f.versions[subjectKey(contextName, subject)]
	if len(versions) == 0 {
		registryError(w, http.StatusNotFound, 40401, "subject not found")
		return
	}
	numbers := make([]int, len(versions))
	for i, v := range versions {
		numbers[i] = v.Version
	}
	writeJSON(w, http.StatusOK, numbers)
}

func (f *fakeRegistry) getSchema(w http.ResponseWriter, qualified, versionPart string) {
	contextName, subject := splitQualified(qualified)
	versions := f.versions[subjectKey(contextName, subject)]
	if len(versions) == 0 {
		registryError(w, http.StatusNotFound, 40401, "subject not found")
		return
	}
	if versionPart == "latest" {
		writeJSON(w, http.StatusOK, versions[len(versions)-1])
		return
	}
	wanted, _ := strconv.Atoi(versionPart)
	for _, v := range versions {
		if v.Version == wanted {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	registryError(w, http.StatusNotFound, 40402, "version not found")
}

func (f *fakeRegistry) register(w http.ResponseWriter, r *http.Request, qualified string) {
	var req registry.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		registryError(w, http.StatusUnprocessableEntity, 42201, "bad payload")
		return
	}
	if req.ID != 0 && f.rejectIDs {
		registryError(w, http.StatusUnprocessableEntity, 42205, "explicit id requires import mode")
		return
	}

	contextName, subject := splitQualified(qualified)
	key := subjectKey(contextName, subject)

	id := req.ID
	if id == 0 {
		id = f.nextID
		f.nextID++
	}
	f.versions[key] = append(f.versions[key], registry.Schema{
		Subject:    subject,
		Version:    len(f.versions[key]) + 1,
		ID:         id,
		SchemaType: req.SchemaType,
		Schema:     req.Schema,
		References: req.References,
	})
	writeJSON(w, http.StatusOK, registry.RegisterResponse{ID: id})
}

func (f *fakeRegistry) deleteSubject(w http.ResponseWriter, qualified string) {
	contextName, subject := splitQualified(qualified)
	key := subjectKey(contextName, subject)

	if f.failingSubjects[key] {
		registryError(w, http.StatusInternalServerError, 50001, "store error")
		return
	}
	versions := f.versions[key]
	if len(versions) == 0 {
		registryError(w, http.StatusNotFound, 40401, "subject not found")
		return
	}
	numbers := make([]int, len(versions))
	for i, v := range versions {
		numbers[i] = v.Version
	}
	delete(f.versions, key)
	writeJSON(w, http.StatusOK, numbers)
}

func (f *fakeRegistry) getConfig(w http.ResponseWriter, qualified string) {
	contextName, subject := splitQualified(qualified)
	key := subjectKey(contextName, subject)
	if f.failingConfigs[key] {
		registryError(w, http.StatusInternalServerError, 50001, "store error")
		return
	}
	compatibility, ok := f.configs[key]
	if !ok {
		registryError(w, http.StatusNotFound, 40401, "no subject-level config")
		return
	}
	writeJSON(w, http.StatusOK, registry.SubjectConfig{CompatibilityLevel: compatibility})
}

func (f *fakeRegistry) getMode(w http.ResponseWriter, qualified string) {
	contextName, subject := splitQualified(qualified)
	mode, ok := f.modes[subjectKey(contextName, subject)]
	if !ok {
		registryError(w, http.StatusNotFound, 40409, "no subject-level mode")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": mode})
}

func (f *fakeRegistry) setMode(w http.ResponseWriter, r *http.Request, qualified string) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		registryError(w, http.StatusUnprocessableEntity, 42201, "bad payload")
		return
	}
	contextName, subject := splitQualified(qualified)
	f.modes[subjectKey(contextName, subject)] = body["mode"]
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func registryError(w http.ResponseWriter, status, code int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error_code": code,
		"message":    message,
	})
}

// testPool builds a registry pool over fake backends with fast retries
func testPool(t *testing.T, refs ...*registry.Ref) *registry.Pool {
	t.Helper()
	pool, err := registry.NewPool(refs, registry.WithRetryConfig(&sdk.RetryConfig{
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1,
		RetryIf:         sdk.DefaultRetryCondition,
	}))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return pool
}

// waitTerminal polls until the task reaches a terminal status
func waitTerminal(t *testing.T, s *Scheduler, taskID string) TaskSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := s.Progress(taskID)
		if err != nil {
			t.Fatalf("Progress(%s): %v", taskID, err)
		}
		if snap.Status.IsTerminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal status", taskID)
	return TaskSnapshot{}
}
