package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bonching/apiculture-iot/internal/config"
	"github.com/bonching/apiculture-iot/internal/types"
)

// Dispatcher posts alerts to the platform alert endpoint.
type Dispatcher struct {
	url  string
	http *http.Client
}

// NewDispatcher creates a dispatcher for the configured endpoint.
func NewDispatcher(cfg config.AlertsConfig) *Dispatcher {
	return &Dispatcher{
		url: strings.TrimRight(cfg.BaseURL, "/") + cfg.Path,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutS) * time.Second,
		},
	}
}

// Send posts the alert once. There is no retry: a failed delivery is
// surfaced to the caller for logging, and the next cycle raises a fresh
// alert if the threat persists.
func (d *Dispatcher) Send(ctx context.Context, alert types.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("alert delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert rejected with status %d", resp.StatusCode)
	}

	slog.Info("Alert delivered",
		"type", alert.Type,
		"sensor_id", alert.SensorID,
		"predator", alert.Predator)
	return nil
}
