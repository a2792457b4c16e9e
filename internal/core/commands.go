package core

import (
	"fmt"
	"log/slog"
	"time"
)

// getStatus returns the current service status
func (d *Defense) getStatus() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	servoOK, sprinklerOK := d.actuator.Availability()
	snapshot := d.stats.Snapshot()

	// Build configuration metadata
	config := map[string]interface{}{
		"monitor": map[string]interface{}{
			"check_interval_s": d.cfg.Monitor.CheckIntervalS,
			"sample_count":     d.cfg.Monitor.SampleCount,
			"photo_dir":        d.cfg.Monitor.PhotoDir,
		},
		"servo": map[string]interface{}{
			"min_angle": d.cfg.Servo.MinAngle,
			"max_angle": d.cfg.Servo.MaxAngle,
		},
		"sprinkler": map[string]interface{}{
			"duration_s": d.cfg.Sprinkler.DurationS,
		},
		"classifier": map[string]interface{}{
			"base_url": d.cfg.Classifier.BaseURL,
			"context":  d.cfg.Classifier.Context,
		},
		"mqtt": map[string]interface{}{
			"broker":          d.cfg.MQTT.Broker,
			"control_topic":   d.cfg.MQTT.Topics.Control,
			"telemetry_topic": d.cfg.MQTT.Topics.Telemetry,
		},
	}

	// Build status response
	status := map[string]interface{}{
		"sensor_id": d.cfg.SensorID,
		"uptime_s":  time.Since(d.started).Seconds(),
		"running":   d.isRunning,
		"paused":    d.isPaused,
		"sweep": map[string]interface{}{
			"direction": d.direction.String(),
		},
		"hardware": map[string]interface{}{
			"camera":           d.camera.Available(),
			"servo":            servoOK,
			"sprinkler":        sprinklerOK,
			"deterrent_active": d.actuator.DeterrentActive(),
		},
		"stats": map[string]interface{}{
			"total_checks":     snapshot.TotalChecks,
			"total_threats":    snapshot.TotalThreats,
			"total_actuations": snapshot.TotalActuations,
		},
		"config": config,
	}

	if d.emitter != nil {
		emitterStats := d.emitter.Stats()
		status["emitter"] = map[string]interface{}{
			"connected": emitterStats.Connected,
			"published": emitterStats.Published,
			"errors":    emitterStats.Errors,
		}
	}

	return status
}

// pauseMonitoring pauses the monitoring loop
func (d *Defense) pauseMonitoring() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isPaused {
		return fmt.Errorf("already paused")
	}

	d.isPaused = true
	return nil
}

// resumeMonitoring resumes the monitoring loop
func (d *Defense) resumeMonitoring() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isPaused {
		return fmt.Errorf("not paused")
	}

	d.isPaused = false
	return nil
}

// triggerSweep schedules an immediate defense cycle
func (d *Defense) triggerSweep() error {
	d.mu.RLock()
	running := d.isRunning
	d.mu.RUnlock()

	if !running {
		return fmt.Errorf("service not running")
	}

	select {
	case d.kick <- struct{}{}:
		return nil
	default:
		return fmt.Errorf("sweep already pending")
	}
}

// deterrentOff forces the sprinkler off immediately
func (d *Defense) deterrentOff() error {
	if err := d.actuator.SetDeterrent(false); err != nil {
		return err
	}
	d.metrics.SetDeterrentActive(false)
	slog.Info("sprinkler forced off via control plane")
	return nil
}

// setCheckInterval updates the cycle interval at runtime
func (d *Defense) setCheckInterval(seconds float64) error {
	if seconds < 10 || seconds > 86400 {
		return fmt.Errorf("invalid interval: %.0f (must be between 10 and 86400 seconds)", seconds)
	}

	d.mu.Lock()
	old := d.cfg.Monitor.CheckIntervalS
	d.cfg.Monitor.CheckIntervalS = int(seconds)
	d.mu.Unlock()

	// The loop reads the interval before every sleep, so the new value
	// applies from the next tick.
	slog.Info("check interval updated",
		"old_s", old,
		"new_s", int(seconds),
	)
	return nil
}

// shutdownViaControl initiates graceful shutdown via MQTT control command
func (d *Defense) shutdownViaControl() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.isRunning {
		return fmt.Errorf("service not running")
	}

	if d.cancelCtx == nil {
		return fmt.Errorf("shutdown not available (no cancel context)")
	}

	// Trigger context cancellation - this will cause Run() to exit
	// and main will handle the graceful shutdown sequence
	d.cancelCtx()
	return nil
}
