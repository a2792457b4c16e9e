package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// MockCamera generates synthetic stills for development machines without
// camera hardware.
type MockCamera struct {
	mu     sync.Mutex
	opened bool
	grabs  uint64
}

// NewMockCamera creates a mock capture device
func NewMockCamera() *MockCamera {
	return &MockCamera{}
}

// Available implements Device
func (m *MockCamera) Available() bool { return true }

// Open implements Device
func (m *MockCamera) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opened {
		return fmt.Errorf("camera session already open")
	}
	m.opened = true

	slog.Info("mock camera session opened")
	return nil
}

// Grab implements Device. The payload is a JPEG-framed marker so file
// listings look plausible during development.
func (m *MockCamera) Grab(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return fmt.Errorf("camera session not open")
	}
	m.grabs++

	payload := fmt.Sprintf("mock still %d at %s", m.grabs, time.Now().Format(time.RFC3339))
	data := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte(payload)...)
	data = append(data, 0xFF, 0xD9)

	return os.WriteFile(path, data, 0o644)
}

// Close implements Device
func (m *MockCamera) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.opened {
		return nil
	}
	m.opened = false

	slog.Info("mock camera session closed", "grabs", m.grabs)
	return nil
}
