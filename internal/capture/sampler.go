package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bonching/apiculture-iot/internal/types"
)

// Sampler orchestrates one sweep: it opens a single camera session,
// rotates through the sample positions and grabs a still at each one.
// The mount travels between positions in short intermediate steps so
// the rotation stays smooth. Without a camera it produces fallback
// samples instead so the rest of the cycle still runs.
type Sampler struct {
	camera   Device
	mount    Mount
	fallback *FallbackLibrary

	photoDir   string
	count      int
	minAngle   int
	maxAngle   int
	motionStep int
}

// NewSampler creates a sampler over the given capture device and mount
func NewSampler(camera Device, mount Mount, fallback *FallbackLibrary, photoDir string, count, minAngle, maxAngle, motionStep int) *Sampler {
	return &Sampler{
		camera:     camera,
		mount:      mount,
		fallback:   fallback,
		photoDir:   photoDir,
		count:      count,
		minAngle:   minAngle,
		maxAngle:   maxAngle,
		motionStep: motionStep,
	}
}

// SweepAngles computes the evenly spaced sample positions for one pass.
// A single sample sits at the midpoint; otherwise both endpoints are
// included. The backward direction reverses the visit order.
func SweepAngles(minAngle, maxAngle, count int, dir types.SweepDirection) []int {
	if count <= 1 {
		return []int{(minAngle + maxAngle) / 2}
	}

	angles := make([]int, count)
	span := float64(maxAngle - minAngle)
	for i := 0; i < count; i++ {
		angles[i] = minAngle + int(math.Round(span*float64(i)/float64(count-1)))
	}

	if dir == types.SweepBackward {
		for i, j := 0, len(angles)-1; i < j; i, j = i+1, j-1 {
			angles[i], angles[j] = angles[j], angles[i]
		}
	}
	return angles
}

// MotionAngles expands the capture positions into the mount's full
// motion plan: between consecutive capture points it inserts
// intermediate stops at most stepDegrees apart, so the horn never has
// to jump a whole gap in one rotation. A step of zero disables the
// intermediate stops.
func MotionAngles(captures []int, stepDegrees int) []int {
	if stepDegrees <= 0 || len(captures) < 2 {
		return captures
	}

	motion := make([]int, 0, len(captures))
	motion = append(motion, captures[0])
	for i := 1; i < len(captures); i++ {
		from, to := captures[i-1], captures[i]
		if to >= from {
			for pos := from + stepDegrees; pos < to; pos += stepDegrees {
				motion = append(motion, pos)
			}
		} else {
			for pos := from - stepDegrees; pos > to; pos -= stepDegrees {
				motion = append(motion, pos)
			}
		}
		motion = append(motion, to)
	}
	return motion
}

// CaptureSweep runs one full sweep and returns the captured samples.
// On any capture failure the partial set is removed and an error is
// returned; the caller sees either a complete sweep or none.
func (s *Sampler) CaptureSweep(ctx context.Context, dir types.SweepDirection) ([]types.SweepSample, error) {
	angles := SweepAngles(s.minAngle, s.maxAngle, s.count, dir)

	if err := os.MkdirAll(s.photoDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}

	if !s.camera.Available() {
		return s.fallbackSweep(angles)
	}

	if err := s.camera.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open camera session: %w", err)
	}
	defer func() {
		if err := s.camera.Close(); err != nil {
			slog.Warn("failed to close camera session", "error", err)
		}
	}()

	captureAt := make(map[int]struct{}, len(angles))
	for _, angle := range angles {
		captureAt[angle] = struct{}{}
	}

	samples := make([]types.SweepSample, 0, len(angles))
	stamp := time.Now().Format("20060102_150405")

	err := s.mount.Sweep(ctx, MotionAngles(angles, s.motionStep), func(angle int) error {
		if _, ok := captureAt[angle]; !ok {
			return nil // intermediate stop, keep rotating
		}
		path := filepath.Join(s.photoDir, fmt.Sprintf("defense_%s_%02d.jpg", stamp, len(samples)))

		if err := s.camera.Grab(ctx, path); err != nil {
			return fmt.Errorf("capture at %d degrees failed: %w", angle, err)
		}

		samples = append(samples, types.SweepSample{
			CapturedAt:   time.Now(),
			AngleDegrees: angle,
			FilePath:     path,
			Origin:       types.OriginLive,
			TraceID:      uuid.New().String(),
		})
		return nil
	})
	if err != nil {
		removeFiles(samples)
		return nil, err
	}

	slog.Info("sweep captured",
		"samples", len(samples),
		"direction", dir.String(),
		"angles", angles,
	)
	return samples, nil
}

// fallbackSweep duplicates one randomly chosen stock image across all
// sample positions.
func (s *Sampler) fallbackSweep(angles []int) ([]types.SweepSample, error) {
	stock, err := s.fallback.Pick()
	if err != nil {
		return nil, err
	}

	slog.Warn("camera not available, using fallback image", "stock", stock)

	samples := make([]types.SweepSample, 0, len(angles))
	stamp := time.Now().Format("20060102_150405")

	for idx, angle := range angles {
		path := filepath.Join(s.photoDir, fmt.Sprintf("defense_%s_%02d.jpg", stamp, idx))

		if err := s.fallback.CopyTo(stock, path); err != nil {
			removeFiles(samples)
			return nil, err
		}

		samples = append(samples, types.SweepSample{
			CapturedAt:   time.Now(),
			AngleDegrees: angle,
			FilePath:     path,
			Origin:       types.OriginFallback,
			TraceID:      uuid.New().String(),
		})
	}
	return samples, nil
}

// removeFiles deletes the files behind a partial sweep.
func removeFiles(samples []types.SweepSample) {
	for _, sample := range samples {
		if err := os.Remove(sample.FilePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove partial capture", "path", sample.FilePath, "error", err)
		}
	}
}
