// Package core orchestrates the defense daemon: the monitoring loop,
// the control plane and the service lifecycle.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bonching/apiculture-iot/internal/actuator"
	"github.com/bonching/apiculture-iot/internal/alerting"
	"github.com/bonching/apiculture-iot/internal/capture"
	"github.com/bonching/apiculture-iot/internal/classifier"
	"github.com/bonching/apiculture-iot/internal/config"
	"github.com/bonching/apiculture-iot/internal/control"
	"github.com/bonching/apiculture-iot/internal/directory"
	"github.com/bonching/apiculture-iot/internal/emitter"
	"github.com/bonching/apiculture-iot/internal/metrics"
	"github.com/bonching/apiculture-iot/internal/types"
)

// Defense is the main service orchestrator
type Defense struct {
	cfg *config.Config

	// Core components
	actuator       Deterrent
	camera         capture.Device
	sampler        Sweeper
	analyzer       Analyzer
	resolver       Resolver
	dispatcher     AlertSender
	publisher      Publisher
	emitter        *emitter.MQTTEmitter
	controlHandler *control.Handler
	metrics        *metrics.Metrics

	// Monitoring state
	stats     *types.CycleStats
	direction types.SweepDirection
	kick      chan struct{}

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	isPaused  bool
	cancelCtx context.CancelFunc // For MQTT shutdown command
}

// NewDefense creates a new defense service instance
func NewDefense(configPath string) (*Defense, error) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"sensor_id", cfg.SensorID,
		"check_interval_s", cfg.Monitor.CheckIntervalS,
		"sample_count", cfg.Monitor.SampleCount,
	)

	// Probe hardware. Absent devices degrade the cycle, they never
	// stop the daemon.
	ctrl := actuator.New(cfg.Servo, cfg.Sprinkler)
	camera := capture.NewDevice(cfg.Camera)
	fallback := capture.NewFallbackLibrary(cfg.Camera.FallbackDir)

	d := &Defense{
		cfg:      cfg,
		actuator: ctrl,
		camera:   camera,
		sampler: capture.NewSampler(camera, ctrl, fallback,
			cfg.Monitor.PhotoDir, cfg.Monitor.SampleCount,
			cfg.Servo.MinAngle, cfg.Servo.MaxAngle, cfg.Servo.MotionStepDegrees),
		analyzer:   classifier.NewAnalyzer(classifier.NewClient(cfg.Classifier, cfg.SensorID)),
		dispatcher: alerting.NewDispatcher(cfg.Alerts),
		metrics:    metrics.New(prometheus.DefaultRegisterer),
		stats:      &types.CycleStats{},
		direction:  types.SweepForward,
		kick:       make(chan struct{}, 1),
	}

	if cfg.MQTT.Broker != "" {
		d.emitter = emitter.NewMQTTEmitter(cfg.MQTT, cfg.SensorID)
		d.publisher = d.emitter
	}

	return d, nil
}

// Run starts the defense service and blocks until context is cancelled
func (d *Defense) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	d.isRunning = true
	d.started = time.Now()
	d.mu.Unlock()

	// Create cancellable context for MQTT shutdown command
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.cancelCtx = cancel
	d.mu.Unlock()

	slog.Info("defense service starting", "sensor_id", d.cfg.SensorID)

	servoOK, sprinklerOK := d.actuator.Availability()
	slog.Info("hardware availability",
		"camera", d.camera.Available(),
		"servo", servoOK,
		"sprinkler", sprinklerOK,
	)

	// Connect platform directory for alert enrichment
	dir, err := directory.New(ctx, d.cfg.Directory)
	if err != nil {
		return fmt.Errorf("failed to connect directory: %w", err)
	}
	d.mu.Lock()
	d.resolver = dir
	d.mu.Unlock()

	// Connect MQTT emitter and control plane when a broker is configured
	if d.emitter != nil {
		if err := d.emitter.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect mqtt: %w", err)
		}

		d.controlHandler = control.NewHandler(d.cfg.MQTT, d.emitter.Client, control.CommandCallbacks{
			OnGetStatus:        d.getStatus,
			OnPause:            d.pauseMonitoring,
			OnResume:           d.resumeMonitoring,
			OnTriggerSweep:     d.triggerSweep,
			OnDeterrentOff:     d.deterrentOff,
			OnSetCheckInterval: d.setCheckInterval,
			OnShutdown:         d.shutdownViaControl,
		})

		if err := d.controlHandler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}

		// Periodic health heartbeat on the broker
		d.wg.Add(1)
		go d.healthLoop(ctx)
	} else {
		slog.Info("no mqtt broker configured, telemetry and control plane disabled")
	}

	// Start monitoring loop
	d.wg.Add(1)
	go d.monitorLoop(ctx)

	slog.Info("defense service running",
		"check_interval_s", d.cfg.Monitor.CheckIntervalS,
		"sample_count", d.cfg.Monitor.SampleCount,
		"sweep_arc", fmt.Sprintf("%d..%d", d.cfg.Servo.MinAngle, d.cfg.Servo.MaxAngle),
	)

	// Wait for context cancellation
	<-ctx.Done()

	slog.Info("defense service run loop exiting")
	return nil
}

// Shutdown performs graceful shutdown of all components
func (d *Defense) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	slog.Info("shutting down defense service")

	// Shutdown sequence (order is important!):
	// 1. Stop control plane (no more commands)
	if d.controlHandler != nil {
		slog.Info("stopping control handler")
		if err := d.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	// 2. Wait for the monitoring loop to finish its cycle
	slog.Info("waiting for monitor loop to finish")
	d.wg.Wait()
	slog.Info("monitor loop finished")

	// 3. Release actuators: forces the sprinkler off, joins the
	// auto-stop watchdog and parks the servo
	if d.actuator != nil {
		if err := d.actuator.Close(); err != nil {
			slog.Error("failed to release actuators", "error", err)
		}
	}
	d.metrics.SetDeterrentActive(false)

	// 4. Release the camera
	if d.camera != nil {
		if err := d.camera.Close(); err != nil {
			slog.Error("failed to release camera", "error", err)
		}
	}

	// 5. Disconnect directory
	if d.resolver != nil {
		if err := d.resolver.Close(ctx); err != nil {
			slog.Error("failed to disconnect directory", "error", err)
		}
	}

	// 6. Disconnect MQTT
	if d.emitter != nil {
		if err := d.emitter.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}

	d.mu.Lock()
	uptime := time.Since(d.started)
	d.isRunning = false
	d.mu.Unlock()

	slog.Info("defense service shutdown complete",
		"uptime", uptime,
	)

	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout
// Returns default of 10 seconds if not configured
func (d *Defense) ShutdownTimeout() time.Duration {
	timeout := time.Duration(d.cfg.ShutdownTimeoutS) * time.Second
	if timeout == 0 {
		return 10 * time.Second // Default
	}
	return timeout
}

// HealthPort returns the configured health server port
func (d *Defense) HealthPort() string {
	return d.cfg.Health.Port
}
