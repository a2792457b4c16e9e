package types

import "time"

// SampleOrigin identifies where a sweep sample's pixels came from.
type SampleOrigin string

const (
	// OriginLive marks a sample captured from the camera during the sweep.
	OriginLive SampleOrigin = "live"
	// OriginFallback marks a sample duplicated from the pre-stocked library
	// because the camera was unavailable.
	OriginFallback SampleOrigin = "fallback"
)

// SweepSample is a single image captured (or substituted) during one sweep.
// Samples are transient: they exist on disk only between capture and the end
// of the analysis pass that consumes them.
type SweepSample struct {
	// CapturedAt is when the image file was produced
	CapturedAt time.Time
	// AngleDegrees is the logical sweep position for this sample. When the
	// sweep mechanism is absent this is still the planned position, even
	// though the camera never moved.
	AngleDegrees int
	// FilePath is the local path of the image file
	FilePath string
	// Origin distinguishes live captures from fallback substitutes
	Origin SampleOrigin
	// TraceID is a unique identifier carried through upload and telemetry
	TraceID string
}

// SweepDirection selects the traversal order of the capture angles.
// It alternates across cycles to spread mechanical wear evenly.
type SweepDirection int

const (
	// SweepForward traverses angles ascending (min to max).
	SweepForward SweepDirection = iota
	// SweepBackward traverses angles descending (max to min).
	SweepBackward
)

// Toggle returns the opposite direction.
func (d SweepDirection) Toggle() SweepDirection {
	if d == SweepForward {
		return SweepBackward
	}
	return SweepForward
}

func (d SweepDirection) String() string {
	if d == SweepBackward {
		return "backward"
	}
	return "forward"
}
