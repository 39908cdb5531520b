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

package registry

import (
	"fmt"
	"time"
)

// Ref identifies one backend schema registry. Immutable once loaded.
type Ref struct {
	Name        string            `json:"name" yaml:"name"`
	BaseURL     string            `json:"base_url" yaml:"base_url"`
	Credentials map[string]string `json:"-" yaml:"credentials"`
	IsDefault   bool              `json:"is_default" yaml:"is_default"`
	ReadOnly    bool              `json:"read_only" yaml:"read_only"`
}

// Schema is one registered schema version fetched from a registry
type Schema struct {
	Subject    string      `json:"subject"`
	Version    int         `json:"version"`
	ID         int         `json:"id"`
	SchemaType string      `json:"schemaType"`
	Schema     string      `json:"schema"`
	References []Reference `json:"references,omitempty"`
}

// Reference is a cross-subject schema reference
type Reference struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Version int    `json:"version"`
}

// SubjectConfig is the compatibility configuration of a subject
type SubjectConfig struct {
	CompatibilityLevel string `json:"compatibilityLevel"`
}

// HealthStatus represents the result of a registry liveness probe
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// DefaultContext is the context name used when a request does not scope
// subjects to a named context.
const DefaultContext = "."

// QualifySubject returns the context-qualified subject name used on the
// wire. Subjects in the default context keep their bare name.
func QualifySubject(contextName, subject string) string {
	if contextName == "" || contextName == DefaultContext {
		return subject
	}
	return fmt.Sprintf(":.%s:%s", contextName, subject)
}

// ContextPrefix returns the subjectPrefix used to scope listing calls to a
// context.
func ContextPrefix(contextName string) string {
	if contextName == "" || contextName == DefaultContext {
		return ":.:"
	}
	return fmt.Sprintf(":.%s:", contextName)
}

// NotFoundError indicates an unknown registry, context, subject or version
type NotFoundError struct {
	Kind string // "registry", "context", "subject", "version"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// ConnectivityError indicates a timeout, DNS failure or refused connection
type ConnectivityError struct {
	Registry  string
	Operation string
	Cause     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s.%s: registry unreachable (cause: %v)", e.Registry, e.Operation, e.Cause)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Cause
}

// AuthError indicates the registry rejected the configured credentials
type AuthError struct {
	Registry   string
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: credentials rejected (HTTP %d)", e.Registry, e.StatusCode)
}

// CompatibilityRejection indicates the registry refused a schema write
type CompatibilityRejection struct {
	Subject string
	Message string
}

func (e *CompatibilityRejection) Error() string {
	return fmt.Sprintf("schema rejected for subject %s: %s", e.Subject, e.Message)
}

// ReadOnlyError indicates a mutating call against a read-only registry
type ReadOnlyError struct {
	Registry  string
	Operation string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("%s.%s: registry is configured read-only", e.Registry, e.Operation)
}

// APIError is a non-taxonomy registry error carrying the backend error code
type APIError struct {
	Registry   string
	Operation  string
	StatusCode int
	ErrorCode  int
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorCode != 0 {
		return fmt.Sprintf("%s.%s: HTTP %d (error_code %d): %s", e.Registry, e.Operation, e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("%s.%s: HTTP %d: %s", e.Registry, e.Operation, e.StatusCode, e.Message)
}
