// Package capture produces the image samples for each defense check. A
// capture device is opened once per sweep, grabs one still per position
// and is closed before analysis starts. When no camera is present the
// sampler falls back to stock images so the pipeline downstream always
// has work to do.
package capture

import (
	"context"

	"github.com/bonching/apiculture-iot/internal/config"
)

// Device is a still camera with session semantics. Open acquires the
// hardware, Grab writes one frame to the given path, Close releases it.
type Device interface {
	// Available reports the cached hardware presence flag probed at startup
	Available() bool
	// Open starts a camera session
	Open(ctx context.Context) error
	// Grab captures a single still into path
	Grab(ctx context.Context, path string) error
	// Close ends the session and releases the device
	Close() error
}

// Mount rotates the camera between sample positions. Implemented by the
// actuator controller; a missing servo visits every position without
// motion.
type Mount interface {
	Sweep(ctx context.Context, angles []int, visit func(angle int) error) error
}

// NewDevice selects the capture implementation for the configured camera.
// The literal device path "mock" selects the synthetic camera.
func NewDevice(cfg config.CameraConfig) Device {
	if cfg.Device == "mock" {
		return NewMockCamera()
	}
	return NewV4L2Camera(cfg)
}
