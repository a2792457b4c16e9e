package core

import (
	"context"
	"time"

	"github.com/bonching/apiculture-iot/internal/classifier"
	"github.com/bonching/apiculture-iot/internal/directory"
	"github.com/bonching/apiculture-iot/internal/types"
)

// Sweeper captures one pass of camera samples across the sweep arc
type Sweeper interface {
	// CaptureSweep runs a full sweep in the given direction
	CaptureSweep(ctx context.Context, dir types.SweepDirection) ([]types.SweepSample, error)
}

// Analyzer uploads sweep samples and reduces the verdicts to an incident
type Analyzer interface {
	// AnalyzeSweep analyzes all samples and deletes them afterwards
	AnalyzeSweep(ctx context.Context, samples []types.SweepSample) (classifier.SweepResult, error)
}

// Deterrent drives the sprinkler hardware
type Deterrent interface {
	// RunDeterrentFor activates the sprinkler for the given duration
	RunDeterrentFor(ctx context.Context, d time.Duration) error
	// SetDeterrent switches the sprinkler on or off immediately
	SetDeterrent(on bool) error
	// DeterrentActive reports whether the sprinkler is currently on
	DeterrentActive() bool
	// Availability reports which actuators were detected at startup
	Availability() (servoOK, sprinklerOK bool)
	// Close forces the deterrent off and releases the hardware
	Close() error
}

// Resolver looks up platform naming for alert enrichment
type Resolver interface {
	// Resolve walks the sensor, hive and farm chain
	Resolve(ctx context.Context, sensorID string) directory.Context
	// Close releases the backing connection
	Close(ctx context.Context) error
}

// AlertSender posts one alert to the platform
type AlertSender interface {
	// Send delivers the alert, best effort
	Send(ctx context.Context, alert types.Alert) error
}

// Publisher emits telemetry events to the message broker
type Publisher interface {
	// Publish publishes one event to its telemetry topic
	Publish(event types.Event) error
}
