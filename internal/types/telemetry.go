package types

import (
	"encoding/json"
	"time"
)

// Event is a telemetry payload bound for the platform broker.
type Event interface {
	// Kind returns the event type (cycle_summary, deterrent, alert)
	Kind() string
	// ToJSON converts the event to JSON bytes
	ToJSON() ([]byte, error)
}

// CycleSummary reports the outcome of one monitoring cycle.
type CycleSummary struct {
	SensorID       string             `json:"sensor_id"`
	Direction      string             `json:"direction"`
	SampleCount    int                `json:"sample_count"`
	FallbackUsed   bool               `json:"fallback_used"`
	CaptureOK      bool               `json:"capture_ok"`
	UploadsOK      int                `json:"uploads_ok"`
	UploadsFailed  int                `json:"uploads_failed"`
	ThreatDetected bool               `json:"threat_detected"`
	Predator       string             `json:"predator,omitempty"`
	Confidence     float64            `json:"confidence,omitempty"`
	ActuationRan   bool               `json:"actuation_ran"`
	DurationMS     int64              `json:"duration_ms"`
	Stats          CycleStatsSnapshot `json:"stats"`
	Timestamp      string             `json:"timestamp"`
}

// Kind implements Event
func (c *CycleSummary) Kind() string { return "cycle_summary" }

// ToJSON implements Event
func (c *CycleSummary) ToJSON() ([]byte, error) { return json.Marshal(c) }

// DeterrentEvent reports a deterrent state change.
type DeterrentEvent struct {
	SensorID  string `json:"sensor_id"`
	Action    string `json:"action"` // activated, deactivated, auto_stop, forced_off
	DurationS int    `json:"duration_s,omitempty"`
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
}

// Kind implements Event
func (d *DeterrentEvent) Kind() string { return "deterrent" }

// ToJSON implements Event
func (d *DeterrentEvent) ToJSON() ([]byte, error) { return json.Marshal(d) }

// AlertEvent mirrors an emitted alert onto the broker so platform consumers
// see it even when the HTTP alert endpoint was down.
type AlertEvent struct {
	Alert     Alert `json:"alert"`
	Delivered bool  `json:"delivered"`
}

// Kind implements Event
func (a *AlertEvent) Kind() string { return "alert" }

// ToJSON implements Event
func (a *AlertEvent) ToJSON() ([]byte, error) { return json.Marshal(a) }

// NowStamp returns the RFC 3339 UTC timestamp used across telemetry payloads.
func NowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
