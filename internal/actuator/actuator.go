// Package actuator drives the defense hardware: the camera rotation servo
// and the water sprinkler. Both devices are optional; absence is detected
// once at startup and cached, and every operation degrades to a logged
// no-op instead of failing the monitoring loop.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/bonching/apiculture-iot/internal/config"
)

var (
	// ErrServoUnavailable indicates the rotation servo was not detected at startup
	ErrServoUnavailable = errors.New("camera rotation servo not available")
	// ErrSprinklerUnavailable indicates the sprinkler was not detected at startup
	ErrSprinklerUnavailable = errors.New("water sprinkler not available")
)

// pwmPin is the servo control surface of gpio.PinIO
type pwmPin interface {
	PWM(d gpio.Duty, f physic.Frequency) error
	Halt() error
}

// switchPin is the sprinkler control surface of gpio.PinIO
type switchPin interface {
	Out(l gpio.Level) error
	Halt() error
}

// Controller owns both actuators and the deterrent auto-stop task.
type Controller struct {
	servoCfg     config.ServoConfig
	sprinklerCfg config.SprinklerConfig

	servo     pwmPin
	sprinkler switchPin

	servoAvailable     bool
	sprinklerAvailable bool

	settle time.Duration

	mu              sync.Mutex
	deterrentActive bool

	watchdog autoStop
}

// New probes the GPIO host and both pins. Probe failures leave the
// corresponding device unavailable; New itself never fails.
func New(servoCfg config.ServoConfig, sprinklerCfg config.SprinklerConfig) *Controller {
	c := &Controller{
		servoCfg:     servoCfg,
		sprinklerCfg: sprinklerCfg,
		settle:       time.Duration(servoCfg.SettleTimeS) * time.Second,
	}

	if _, err := host.Init(); err != nil {
		slog.Warn("gpio host init failed, actuators disabled", "error", err)
		return c
	}

	if pin := gpioreg.ByName(servoCfg.Pin); pin != nil {
		c.servo = pin
		c.servoAvailable = true
		slog.Info("camera rotation servo initialized", "pin", servoCfg.Pin)
	} else {
		slog.Warn("camera rotation servo not available", "pin", servoCfg.Pin)
	}

	if pin := gpioreg.ByName(sprinklerCfg.Pin); pin != nil {
		// Assert a known-safe level before trusting the pin.
		if err := pin.Out(gpio.Low); err != nil {
			slog.Warn("water sprinkler not available", "pin", sprinklerCfg.Pin, "error", err)
		} else {
			c.sprinkler = pin
			c.sprinklerAvailable = true
			slog.Info("water sprinkler initialized", "pin", sprinklerCfg.Pin)
		}
	} else {
		slog.Warn("water sprinkler not available", "pin", sprinklerCfg.Pin)
	}

	return c
}

// Availability returns the cached hardware presence flags.
func (c *Controller) Availability() (servo, sprinkler bool) {
	return c.servoAvailable, c.sprinklerAvailable
}

// DeterrentActive reports whether the sprinkler is currently commanded on.
func (c *Controller) DeterrentActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deterrentActive
}

// SetDeterrent switches the sprinkler on or off. Any failed write is
// answered with a low re-assert so the pin never stays in an unknown
// high state; turning off an absent sprinkler is a no-op. The mutex
// serializes the pin against shutdown cleanup.
func (c *Controller) SetDeterrent(on bool) error {
	if !c.sprinklerAvailable {
		if on {
			return ErrSprinklerUnavailable
		}
		return nil
	}

	level := gpio.Low
	if on {
		level = gpio.High
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sprinkler.Out(level); err != nil {
		if retryErr := c.sprinkler.Out(gpio.Low); retryErr == nil {
			c.deterrentActive = false
			if !on {
				return nil
			}
		}
		return fmt.Errorf("sprinkler output failed: %w", err)
	}

	c.deterrentActive = on
	return nil
}

// RunDeterrentFor activates the sprinkler for the given duration and
// guarantees it is off when the call returns. A watchdog forces the pin
// low shortly after the deadline even if this goroutine stalls.
func (c *Controller) RunDeterrentFor(ctx context.Context, d time.Duration) error {
	if err := c.SetDeterrent(true); err != nil {
		return err
	}
	slog.Info("water sprinkler activated", "duration", d)

	c.watchdog.arm(d+autoStopGrace, func() {
		slog.Warn("deterrent auto-stop fired, forcing sprinkler off")
		if err := c.SetDeterrent(false); err != nil {
			slog.Error("auto-stop failed to force sprinkler off", "error", err)
		}
	})

	defer func() {
		c.watchdog.stop()
		if err := c.SetDeterrent(false); err != nil {
			slog.Error("failed to deactivate sprinkler", "error", err)
		} else {
			slog.Info("water sprinkler deactivated")
		}
	}()

	return sleepCtx(ctx, d)
}

// Close forces the deterrent off, joins the auto-stop task, parks the
// servo at neutral and releases both pins.
func (c *Controller) Close() error {
	if err := c.SetDeterrent(false); err != nil {
		slog.Error("failed to force sprinkler off during shutdown", "error", err)
	}
	c.watchdog.stop()

	if c.servoAvailable {
		parkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.Park(parkCtx); err != nil {
			slog.Warn("failed to park servo", "error", err)
		}
		cancel()
		if err := c.servo.Halt(); err != nil {
			slog.Warn("failed to halt servo", "error", err)
		}
	}

	if c.sprinklerAvailable {
		if err := c.sprinkler.Halt(); err != nil {
			slog.Warn("failed to halt sprinkler pin", "error", err)
		}
	}

	slog.Info("actuators released")
	return nil
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
