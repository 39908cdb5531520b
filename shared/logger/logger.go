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

package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel is the severity attached to an entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger writes JSON lines to stdout, one entry per call. Every entry
// carries the owning component and hostname; task and request IDs ride
// along when the caller has them.
type Logger struct {
	Component string
	Hostname  string
}

// LogEntry is the JSON shape of a single emitted line
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Component string                 `json:"component"`
	Hostname  string                 `json:"hostname"`
	TaskID    string                 `json:"task_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New returns a logger scoped to one component name
func New(component string) *Logger {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Logger{
		Component: component,
		Hostname:  hostname,
	}
}

// Log emits one entry at the given level
func (l *Logger) Log(level LogLevel, taskID, requestID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		Hostname:  l.Hostname,
		TaskID:    taskID,
		RequestID: requestID,
		Message:   message,
		Fields:    fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// An unmarshalable field value; report in plain text rather
		// than dropping the line silently
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	log.Println(string(jsonBytes))
}

// Info emits at INFO
func (l *Logger) Info(taskID, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, taskID, requestID, message, fields)
}

// Error emits at ERROR
func (l *Logger) Error(taskID, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, taskID, requestID, message, fields)
}

// Warn emits at WARN
func (l *Logger) Warn(taskID, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, taskID, requestID, message, fields)
}

// Debug emits at DEBUG
func (l *Logger) Debug(taskID, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, taskID, requestID, message, fields)
}

// InfoWithDuration emits at INFO with a duration_ms field merged in
func (l *Logger) InfoWithDuration(taskID, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(taskID, requestID, message, fields)
}

// ErrorWithErr emits at ERROR with err's text under the error field
func (l *Logger) ErrorWithErr(taskID, requestID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(taskID, requestID, message, fields)
}
