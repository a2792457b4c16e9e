// Package control implements the MQTT control plane for the defense
// daemon. Commands arrive on the control topic, responses go out on
// the health topic.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bonching/apiculture-iot/internal/config"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Handler handles control plane commands
type Handler struct {
	cfg      config.MQTTConfig
	client   mqtt.Client
	commands chan Command

	mu        sync.RWMutex
	isPaused  bool
	callbacks CommandCallbacks
}

// CommandCallbacks contains callback functions for commands
type CommandCallbacks struct {
	OnGetStatus        func() map[string]interface{}
	OnPause            func() error
	OnResume           func() error
	OnTriggerSweep     func() error
	OnDeterrentOff     func() error
	OnSetCheckInterval func(float64) error
	OnShutdown         func() error
}

// NewHandler creates a new control plane handler
func NewHandler(cfg config.MQTTConfig, client mqtt.Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start starts listening for control commands
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.Topics.Control
	qos := h.cfg.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")

	// Process commands
	go h.processCommands(ctx)

	return nil
}

// Stop stops the control plane handler
func (h *Handler) Stop() error {
	topic := h.cfg.Topics.Control

	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(topic)
		token.Wait()
	}

	close(h.commands)

	slog.Info("control plane handler stopped")
	return nil
}

// messageHandler is called when a control message is received
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	// Send to processing channel
	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

// processCommands processes commands from the queue
func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handleCommand(cmd)
		}
	}
}

// handleCommand executes a command
func (h *Handler) handleCommand(cmd Command) {
	var resp Response
	resp.CommandAck = cmd.Command

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus != nil {
			resp.Status = "success"
			resp.Data = h.callbacks.OnGetStatus()
		} else {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
		}

	case "pause_monitoring":
		if h.callbacks.OnPause != nil {
			if err := h.callbacks.OnPause(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				h.mu.Lock()
				h.isPaused = true
				h.mu.Unlock()
				resp.Status = "paused"
				resp.Data = map[string]interface{}{
					"monitoring_active": false,
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "pause not implemented"
		}

	case "resume_monitoring":
		if h.callbacks.OnResume != nil {
			if err := h.callbacks.OnResume(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				h.mu.Lock()
				h.isPaused = false
				h.mu.Unlock()
				resp.Status = "success"
				resp.Data = map[string]interface{}{
					"monitoring_active": true,
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "resume not implemented"
		}

	case "trigger_sweep":
		if h.callbacks.OnTriggerSweep != nil {
			if err := h.callbacks.OnTriggerSweep(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "success"
				resp.Data = map[string]interface{}{
					"sweep_requested": true,
					"message":         "defense sweep scheduled",
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "trigger_sweep not implemented"
		}

	case "deterrent_off":
		if h.callbacks.OnDeterrentOff != nil {
			if err := h.callbacks.OnDeterrentOff(); err != nil {
				resp.Status = "error"
				resp.Error = err.Error()
			} else {
				resp.Status = "success"
				resp.Data = map[string]interface{}{
					"deterrent_active": false,
					"message":          "sprinkler forced off",
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "deterrent_off not implemented"
		}

	case "set_check_interval":
		if h.callbacks.OnSetCheckInterval != nil {
			// Extract interval from params
			interval, ok := cmd.Params["interval_s"].(float64)
			if !ok {
				resp.Status = "error"
				resp.Error = "missing or invalid 'interval_s' parameter (expected float)"
			} else {
				if err := h.callbacks.OnSetCheckInterval(interval); err != nil {
					resp.Status = "error"
					resp.Error = err.Error()
				} else {
					resp.Status = "success"
					resp.Data = map[string]interface{}{
						"check_interval_s": interval,
						"message":          "check interval updated",
					}
				}
			}
		} else {
			resp.Status = "error"
			resp.Error = "set_check_interval not implemented"
		}

	case "shutdown":
		if h.callbacks.OnShutdown != nil {
			slog.Warn("shutdown command received via MQTT control plane")
			resp.Status = "success"
			resp.Data = map[string]interface{}{
				"shutdown_initiated": true,
				"message":            "graceful shutdown in progress",
			}
			// Send response BEFORE triggering shutdown
			h.sendResponse(resp)

			// Trigger shutdown asynchronously
			go func() {
				time.Sleep(500 * time.Millisecond) // Brief delay to ensure response is sent
				if err := h.callbacks.OnShutdown(); err != nil {
					slog.Error("shutdown callback failed", "error", err)
				}
			}()
			return // Don't send response again
		} else {
			resp.Status = "error"
			resp.Error = "shutdown not implemented"
		}

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	h.sendResponse(resp)
}

// sendResponse sends a response to the health topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	topic := h.cfg.Topics.Health
	qos := h.cfg.QoS["health"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}

// IsPaused returns whether monitoring is paused
func (h *Handler) IsPaused() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isPaused
}
