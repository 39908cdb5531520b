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
	"github.com/prometheus/client_golang/prometheus"
)

// TaskMetrics holds the prometheus instruments for the scheduler. It is
// constructed against an injected registerer so tests get a fresh registry.
type TaskMetrics struct {
	TasksSubmitted *prometheus.CounterVec
	TasksFinished  *prometheus.CounterVec
	UnitOutcomes   *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	TasksRunning   prometheus.Gauge
	QueueDepth     prometheus.Gauge
}

// NewTaskMetrics creates and registers the scheduler metrics
func NewTaskMetrics(reg prometheus.Registerer) *TaskMetrics {
	m := &TaskMetrics{
		TasksSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemagate_tasks_submitted_total",
				Help: "Total number of tasks submitted to the scheduler",
			},
			[]string{"kind"},
		),
		TasksFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemagate_tasks_finished_total",
				Help: "Total number of tasks reaching a terminal status",
			},
			[]string{"kind", "status"},
		),
		UnitOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schemagate_task_units_total",
				Help: "Total number of executed work units by outcome",
			},
			[]string{"kind", "outcome"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schemagate_task_duration_seconds",
				Help:    "Wall-clock task duration from start to terminal status",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"kind", "status"},
		),
		TasksRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "schemagate_tasks_running",
				Help: "Number of tasks currently executing",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "schemagate_task_queue_depth",
				Help: "Number of tasks waiting for a worker",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.TasksSubmitted,
			m.TasksFinished,
			m.UnitOutcomes,
			m.TaskDuration,
			m.TasksRunning,
			m.QueueDepth,
		)
	}

	return m
}
