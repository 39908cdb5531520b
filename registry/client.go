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
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"schemagate/platform/registry/sdk"
)

const (
	// DefaultTimeout is the per-call HTTP timeout against a registry
	DefaultTimeout = 30 * time.Second
	// DefaultMaxResponseSize caps registry response bodies (10MB)
	DefaultMaxResponseSize = 10 * 1024 * 1024
)

// Client issues the primitive schema-registry calls against one backend.
// All calls carry bounded timeouts; transient failures are retried per the
// configured retry policy.
type Client struct {
	ref             *Ref
	httpClient      *http.Client
	logger          *log.Logger
	retryConfig     *sdk.RetryConfig
	maxResponseSize int64
}

// ClientOption customizes a Client
type ClientOption func(*Client)

// WithTimeout overrides the per-call timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetryConfig overrides the transient-failure retry policy
func WithRetryConfig(rc *sdk.RetryConfig) ClientOption {
	return func(c *Client) {
		c.retryConfig = rc
	}
}

// NewClient creates a registry client for the given reference
func NewClient(ref *Ref, opts ...ClientOption) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	c := &Client{
		ref: ref,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
		},
		logger:          log.New(os.Stdout, "[REGISTRY] ", log.LstdFlags),
		retryConfig:     sdk.DefaultRetryConfig(),
		maxResponseSize: DefaultMaxResponseSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Ref returns the registry reference this client talks to
func (c *Client) Ref() *Ref {
	return c.ref
}

// Ping performs a cheap liveness probe against the registry
func (c *Client) Ping(ctx context.Context) *HealthStatus {
	start := time.Now()
	var subjects []string
	err := c.get(ctx, "/subjects", url.Values{"subjectPrefix": {":*:"}}, &subjects)
	latency := time.Since(start)

	status := &HealthStatus{
		Healthy:   err == nil,
		Latency:   latency,
		Timestamp: time.Now(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// ListSubjects returns the subjects registered in one context
func (c *Client) ListSubjects(ctx context.Context, contextName string) ([]string, error) {
	params := url.Values{"subjectPrefix": {ContextPrefix(contextName)}}

	var qualified []string
	if err := c.get(ctx, "/subjects", params, &qualified); err != nil {
		return nil, err
	}

	// Strip the context qualifier so callers deal in bare subject names
	prefix := ContextPrefix(contextName)
	subjects := make([]string, 0, len(qualified))
	for _, s := range qualified {
		subjects = append(subjects, strings.TrimPrefix(s, prefix))
	}
	return subjects, nil
}

// ListContexts returns the contexts known to the registry
func (c *Client) ListContexts(ctx context.Context) ([]string, error) {
	var contexts []string
	if err := c.get(ctx, "/contexts", nil, &contexts); err != nil {
		return nil, err
	}
	return contexts, nil
}

// ListVersions returns the version numbers registered for a subject
func (c *Client) ListVersions(ctx context.Context, contextName, subject string) ([]int, error) {
	path := fmt.Sprintf("/subjects/%s/versions", url.PathEscape(QualifySubject(contextName, subject)))

	var versions []int
	if err := c.get(ctx, path, nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// GetSchema fetches one schema version of a subject. Pass version <= 0 for latest.
func (c *Client) GetSchema(ctx context.Context, contextName, subject string, version int) (*Schema, error) {
	versionPart := "latest"
	if version > 0 {
		versionPart = fmt.Sprintf("%d", version)
	}
	path := fmt.Sprintf("/subjects/%s/versions/%s", url.PathEscape(QualifySubject(contextName, subject)), versionPart)

	var schema Schema
	if err := c.get(ctx, path, nil, &schema); err != nil {
		return nil, err
	}
	if schema.SchemaType == "" {
		schema.SchemaType = "AVRO"
	}
	return &schema, nil
}

// RegisterRequest is the payload for a schema registration
type RegisterRequest struct {
	Schema     string      `json:"schema"`
	SchemaType string      `json:"schemaType,omitempty"`
	References []Reference `json:"references,omitempty"`
	ID         int         `json:"id,omitempty"`
	Version    int         `json:"version,omitempty"`
}

// RegisterResponse is the backend's answer to a registration
type RegisterResponse struct {
	ID int `json:"id"`
}

// RegisterSchema registers a schema under a subject. When req.ID is set the
// registry must be in IMPORT mode for the subject or the call is rejected.
func (c *Client) RegisterSchema(ctx context.Context, contextName, subject string, req *RegisterRequest) (int, error) {
	if c.ref.ReadOnly {
		return 0, &ReadOnlyError{Registry: c.ref.Name, Operation: "RegisterSchema"}
	}

	path := fmt.Sprintf("/subjects/%s/versions", url.PathEscape(QualifySubject(contextName, subject)))

	var resp RegisterResponse
	if err := c.send(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// GetSubjectConfig returns the compatibility configuration of a subject.
// A registry 40401/40408 answer means the subject has no override; that is
// reported as a NotFoundError.
func (c *Client) GetSubjectConfig(ctx context.Context, contextName, subject string) (*SubjectConfig, error) {
	path := fmt.Sprintf("/config/%s", url.PathEscape(QualifySubject(contextName, subject)))

	var config SubjectConfig
	if err := c.get(ctx, path, nil, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// SetSubjectConfig sets the compatibility configuration of a subject
func (c *Client) SetSubjectConfig(ctx context.Context, contextName, subject, compatibility string) error {
	if c.ref.ReadOnly {
		return &ReadOnlyError{Registry: c.ref.Name, Operation: "SetSubjectConfig"}
	}

	path := fmt.Sprintf("/config/%s", url.PathEscape(QualifySubject(contextName, subject)))
	body := map[string]string{"compatibility": compatibility}
	return c.send(ctx, http.MethodPut, path, nil, body, nil)
}

// GetMode returns the mode of a subject (READWRITE, READONLY, IMPORT)
func (c *Client) GetMode(ctx context.Context, contextName, subject string) (string, error) {
	path := fmt.Sprintf("/mode/%s", url.PathEscape(QualifySubject(contextName, subject)))

	var resp struct {
		Mode string `json:"mode"`
	}
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Mode, nil
}

// SetMode sets the mode of a subject
func (c *Client) SetMode(ctx context.Context, contextName, subject, mode string) error {
	if c.ref.ReadOnly {
		return &ReadOnlyError{Registry: c.ref.Name, Operation: "SetMode"}
	}

	path := fmt.Sprintf("/mode/%s", url.PathEscape(QualifySubject(contextName, subject)))
	body := map[string]string{"mode": mode}
	return c.send(ctx, http.MethodPut, path, nil, body, nil)
}

// DeleteSubject soft-deletes a subject and all its versions in one call
func (c *Client) DeleteSubject(ctx context.Context, contextName, subject string) ([]int, error) {
	if c.ref.ReadOnly {
		return nil, &ReadOnlyError{Registry: c.ref.Name, Operation: "DeleteSubject"}
	}

	path := fmt.Sprintf("/subjects/%s", url.PathEscape(QualifySubject(contextName, subject)))

	var versions []int
	if err := c.send(ctx, http.MethodDelete, path, nil, nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// DeleteContext removes an empty context from the registry
func (c *Client) DeleteContext(ctx context.Context, contextName string) error {
	if c.ref.ReadOnly {
		return &ReadOnlyError{Registry: c.ref.Name, Operation: "DeleteContext"}
	}

	path := fmt.Sprintf("/contexts/%s", url.PathEscape(contextName))
	return c.send(ctx, http.MethodDelete, path, nil, nil, nil)
}

// get issues a GET with retry and decodes the JSON response into out
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	return c.doWithRetry(ctx, http.MethodGet, path, params, nil, out)
}

// send issues a mutating call with retry and decodes the JSON response into out
func (c *Client) send(ctx context.Context, method, path string, params url.Values, body, out interface{}) error {
	return c.doWithRetry(ctx, method, path, params, body, out)
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, params url.Values, body, out interface{}) error {
	return sdk.RetryVoid(ctx, c.retryConfig, func() error {
		return c.do(ctx, method, path, params, body, out)
	})
}

// errorBody is the error envelope the registry backend returns
type errorBody struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out interface{}) error {
	reqURL, err := url.Parse(c.ref.BaseURL + path)
	if err != nil {
		return &sdk.NonRetryableError{Err: fmt.Errorf("invalid URL path %s: %w", path, err)}
	}
	if len(params) > 0 {
		reqURL.RawQuery = params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return &sdk.NonRetryableError{Err: fmt.Errorf("failed to marshal request body: %w", err)}
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), bodyReader)
	if err != nil {
		return &sdk.NonRetryableError{Err: err}
	}

	req.Header.Set("Accept", "application/vnd.schemaregistry.v1+json, application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failure: DNS, refused, timeout
		return &ConnectivityError{Registry: c.ref.Name, Operation: method + " " + path, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		return &ConnectivityError{Registry: c.ref.Name, Operation: method + " " + path, Cause: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return &sdk.NonRetryableError{Err: fmt.Errorf("failed to decode registry response: %w", err)}
			}
		}
		return nil
	}

	return c.mapError(method, path, resp.StatusCode, respBody)
}

// mapError classifies a non-2xx registry answer into the error taxonomy
func (c *Client) mapError(method, path string, status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	message := eb.Message
	if message == "" {
		message = strings.TrimSpace(string(body))
		if len(message) > 200 {
			message = message[:200] + "..."
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &sdk.NonRetryableError{Err: &AuthError{Registry: c.ref.Name, StatusCode: status}}
	case status == http.StatusNotFound:
		kind := "subject"
		if eb.ErrorCode == 40402 {
			kind = "version"
		}
		return &sdk.NonRetryableError{Err: &NotFoundError{Kind: kind, Name: path}}
	case status == http.StatusConflict || eb.ErrorCode == 409:
		return &sdk.NonRetryableError{Err: &CompatibilityRejection{Subject: path, Message: message}}
	case status == http.StatusUnprocessableEntity:
		// 422xx covers invalid schema and mode violations (e.g. explicit ID
		// outside IMPORT mode)
		return &sdk.NonRetryableError{Err: &APIError{
			Registry: c.ref.Name, Operation: method + " " + path,
			StatusCode: status, ErrorCode: eb.ErrorCode, Message: message,
		}}
	case status == http.StatusTooManyRequests || status >= 500:
		return &sdk.RetryableError{Err: &APIError{
			Registry: c.ref.Name, Operation: method + " " + path,
			StatusCode: status, ErrorCode: eb.ErrorCode, Message: message,
		}}
	default:
		return &sdk.NonRetryableError{Err: &APIError{
			Registry: c.ref.Name, Operation: method + " " + path,
			StatusCode: status, ErrorCode: eb.ErrorCode, Message: message,
		}}
	}
}

// applyAuth applies the registry's configured authentication to the request
func (c *Client) applyAuth(req *http.Request) {
	if c.ref.Credentials == nil {
		return
	}
	if token, ok := c.ref.Credentials["token"]; ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		return
	}
	if username, ok := c.ref.Credentials["username"]; ok && username != "" {
		req.SetBasicAuth(username, c.ref.Credentials["password"])
	}
}
