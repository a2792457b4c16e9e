package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Duty bounds keep the control pulse inside the horn's mechanical stops
// even if an out-of-range angle slips through.
const (
	dutyPercentMin = 2.5
	dutyPercentMax = 12.5
)

// dutyFor maps an angle in degrees to a PWM duty cycle.
func (c *Controller) dutyFor(angle int) gpio.Duty {
	pct := c.servoCfg.DutyBase + float64(angle)/c.servoCfg.DutyScale
	if pct < dutyPercentMin {
		pct = dutyPercentMin
	}
	if pct > dutyPercentMax {
		pct = dutyPercentMax
	}
	return gpio.Duty(pct / 100 * float64(gpio.DutyMax))
}

// MoveTo rotates the camera mount to the given angle and waits for the
// horn to settle.
func (c *Controller) MoveTo(ctx context.Context, angle int) error {
	if !c.servoAvailable {
		return ErrServoUnavailable
	}

	freq := physic.Frequency(c.servoCfg.PWMHz) * physic.Hertz
	if err := c.servo.PWM(c.dutyFor(angle), freq); err != nil {
		return fmt.Errorf("servo pwm failed: %w", err)
	}

	return sleepCtx(ctx, c.settle)
}

// Park returns the mount to neutral. Called during shutdown so the next
// start finds the camera centered.
func (c *Controller) Park(ctx context.Context) error {
	return c.MoveTo(ctx, 0)
}

// Sweep visits each angle in order, rotating the mount when the servo is
// present. The visit callback runs only after the mount has settled, so
// captures never race the motion. A missing servo or a motion fault does
// not skip a position; the visit still happens at the current heading.
func (c *Controller) Sweep(ctx context.Context, angles []int, visit func(angle int) error) error {
	for _, angle := range angles {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.MoveTo(ctx, angle); err != nil {
			switch {
			case errors.Is(err, ErrServoUnavailable):
				slog.Debug("servo absent, visiting position without rotation", "angle", angle)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				slog.Warn("camera rotation failed, visiting at current heading",
					"angle", angle,
					"error", err,
				)
			}
		}

		if err := visit(angle); err != nil {
			return err
		}
	}
	return nil
}
