package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bonching/apiculture-iot/internal/types"
)

// healthBeatInterval is how often the daemon reports itself on the
// broker's health topic.
const healthBeatInterval = 30 * time.Second

// HealthStatus represents the health state of the defense service
type HealthStatus struct {
	Status             string                   `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds      int64                    `json:"uptime_seconds"`
	Paused             bool                     `json:"paused"`
	CameraAvailable    bool                     `json:"camera_available"`
	ServoAvailable     bool                     `json:"servo_available"`
	SprinklerAvailable bool                     `json:"sprinkler_available"`
	MQTTConnected      bool                     `json:"mqtt_connected"`
	DeterrentActive    bool                     `json:"deterrent_active"`
	Stats              types.CycleStatsSnapshot `json:"stats"`
}

// HealthCheck returns the current health status of the service
func (d *Defense) HealthCheck() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	servoOK, sprinklerOK := d.actuator.Availability()

	status := HealthStatus{
		Status:             "healthy",
		UptimeSeconds:      int64(time.Since(d.started).Seconds()),
		Paused:             d.isPaused,
		CameraAvailable:    d.camera.Available(),
		ServoAvailable:     servoOK,
		SprinklerAvailable: sprinklerOK,
		DeterrentActive:    d.actuator.DeterrentActive(),
		Stats:              d.stats.Snapshot(),
	}

	// Check MQTT connection
	if d.emitter != nil && d.emitter.Client != nil && d.emitter.Client.IsConnected() {
		status.MQTTConnected = true
	}

	// Determine overall health status. A missing camera degrades the
	// service (cycles fall back to stock images) but keeps it ready.
	if !d.isRunning {
		status.Status = "unhealthy"
	} else if !status.CameraAvailable || (d.emitter != nil && !status.MQTTConnected) {
		status.Status = "degraded"
	}

	return status
}

// healthLoop publishes the health snapshot to the broker until the
// context is cancelled. Started only when an emitter is configured.
func (d *Defense) healthLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(healthBeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(d.HealthCheck())
			if err != nil {
				slog.Warn("failed to encode health snapshot", "error", err)
				continue
			}
			if err := d.emitter.PublishHealth(payload); err != nil {
				slog.Debug("health publish failed", "error", err)
			}
		}
	}
}

// LivenessHandler handles /health endpoint (simple liveness check)
// Returns 200 if the service process is alive
func (d *Defense) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Simple check: if we can execute this code, we're alive
	response := map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(d.started).Seconds()),
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler handles /readiness endpoint (detailed readiness check)
// Returns 200 only if the service is ready to handle requests
func (d *Defense) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := d.HealthCheck()

	// Determine HTTP status based on health
	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// StartHealthServer starts the HTTP health check server on the given port
// This runs in a separate goroutine and does not block
func (d *Defense) StartHealthServer(port string) error {
	mux := http.NewServeMux()

	// Register health check endpoints
	mux.HandleFunc("/health", d.LivenessHandler)
	mux.HandleFunc("/readiness", d.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health check server",
		"port", port,
		"endpoints", []string{"/health", "/readiness", "/metrics"},
	)

	// Start server in goroutine (non-blocking)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()

	return nil
}
