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

package gateway

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"schemagate/platform/orchestrator"
	"schemagate/platform/registry"
)

// Router assembles the gateway's HTTP routes over the server's handlers.
// The prometheus registry is passed in so metrics and handlers share one.
func (s *Server) Router(promRegistry *prometheus.Registry) http.Handler {
	r := mux.NewRouter()

	// Health and metrics
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")
	if promRegistry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})).Methods("GET")
	}

	// Task submission
	r.HandleFunc("/api/v1/migrations", s.submitMigrationHandler).Methods("POST")
	r.HandleFunc("/api/v1/cleanups", s.submitCleanupHandler).Methods("POST")
	r.HandleFunc("/api/v1/comparisons", s.submitComparisonHandler).Methods("POST")

	// Task lifecycle
	r.HandleFunc("/api/v1/tasks", s.listTasksHandler).Methods("GET")
	r.HandleFunc("/api/v1/tasks/{id}", s.getTaskHandler).Methods("GET")
	r.HandleFunc("/api/v1/tasks/{id}/cancel", s.cancelTaskHandler).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(requestIDMiddleware(r))
}

// Run is the exported entry point for the gateway service.
//
// It loads the registries file, wires the pool, planner, scheduler and
// engines, sets up HTTP routes, and serves until SIGINT/SIGTERM. Shutdown
// drains in-flight HTTP requests and then the scheduler's workers.
//
// Environment variables used:
//   - PORT: HTTP server port (default: 8080)
//   - REGISTRIES_FILE: path to the registries YAML (default: registries.yaml)
//   - WORKER_COUNT: scheduler worker pool size (default: 4)
//   - QUEUE_SIZE: scheduler queue bound (default: 64)
//   - TASK_RETENTION: max retained task records (default: 500)
//   - REDIS_URL: redis endpoint for submission rate limiting (optional)
//   - SUBMIT_LIMIT_PER_MINUTE: submission rate limit (default: 60)
func Run() {
	log.Println("Starting SchemaGate gateway...")

	configPath := getEnv("REGISTRIES_FILE", "registries.yaml")
	config, err := registry.LoadConfigFile(configPath)
	if err != nil {
		log.Fatalf("Failed to load registries file %s: %v", configPath, err)
	}

	pool, err := registry.NewPool(config.Refs())
	if err != nil {
		log.Fatalf("Failed to build registry pool: %v", err)
	}
	log.Printf("Loaded %d registries (default: %s)", len(pool.Names()), pool.DefaultName())

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := orchestrator.NewTaskMetrics(promRegistry)

	store := orchestrator.NewTaskStore(getEnvInt("TASK_RETENTION", orchestrator.DefaultMaxRetainedTasks))
	scheduler := orchestrator.NewScheduler(store, metrics, orchestrator.SchedulerConfig{
		Workers:   getEnvInt("WORKER_COUNT", orchestrator.DefaultWorkerCount),
		QueueSize: getEnvInt("QUEUE_SIZE", orchestrator.DefaultQueueSize),
	})
	scheduler.Register(orchestrator.KindMigration, orchestrator.NewMigrationEngine(pool))
	scheduler.Register(orchestrator.KindComparison, orchestrator.NewComparisonEngine(pool))
	scheduler.Register(orchestrator.KindCleanup, orchestrator.NewCleanupEngine(pool))
	scheduler.Start()

	limiter, err := NewRateLimiter(os.Getenv("REDIS_URL"), getEnvInt("SUBMIT_LIMIT_PER_MINUTE", DefaultSubmitLimitPerMinute))
	if err != nil {
		log.Fatalf("Failed to initialize rate limiter: %v", err)
	}
	if os.Getenv("REDIS_URL") != "" {
		log.Println("Redis rate limiting enabled")
	}

	server := NewServer(pool, orchestrator.NewPlanner(pool), scheduler, limiter)

	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Router(promRegistry),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("SchemaGate gateway listening on port %s", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	scheduler.Stop(shutdownCtx)
	_ = limiter.Close()

	log.Println("SchemaGate gateway stopped")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using default %d", key, value, fallback)
		return fallback
	}
	return parsed
}
