package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bonching/apiculture-iot/internal/actuator"
	"github.com/bonching/apiculture-iot/internal/alerting"
	"github.com/bonching/apiculture-iot/internal/directory"
	"github.com/bonching/apiculture-iot/internal/types"
)

// monitorLoop runs defense cycles until the context is cancelled.
// Scheduling sleeps first so a crash looping daemon cannot hammer the
// classifier on restart.
func (d *Defense) monitorLoop(ctx context.Context) {
	defer d.wg.Done()

	slog.Info("monitor loop started", "check_interval", d.checkInterval())

	for {
		timer := time.NewTimer(d.checkInterval())
		kicked := false

		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("monitor loop stopped")
			return
		case <-d.kick:
			timer.Stop()
			kicked = true
			slog.Info("sweep triggered via control plane")
		case <-timer.C:
		}

		// An operator triggered sweep runs even while paused
		if d.paused() && !kicked {
			slog.Debug("monitoring paused, skipping cycle")
			continue
		}

		d.runCycle(ctx)
	}
}

// runCycle performs one full defense cycle. All failures are handled
// here so the monitor loop survives any single bad cycle.
func (d *Defense) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("defense cycle panicked", "panic", r)
			d.metrics.CycleErrorsTotal.Inc()
		}
	}()

	start := time.Now()
	d.stats.IncChecks()
	d.metrics.CyclesTotal.Inc()

	d.mu.RLock()
	dir := d.direction
	d.mu.RUnlock()

	slog.Info("defense cycle started", "direction", dir.String())

	summary := &types.CycleSummary{
		SensorID:  d.cfg.SensorID,
		Direction: dir.String(),
	}

	samples, err := d.sampler.CaptureSweep(ctx, dir)
	if err != nil {
		slog.Error("capture sweep failed", "error", err)
		d.metrics.CycleErrorsTotal.Inc()
		d.finishCycle(summary, start)
		return
	}

	// The arc alternates only after a sweep actually produced samples,
	// so a failed sweep retries the same coverage next cycle.
	d.mu.Lock()
	d.direction = d.direction.Toggle()
	d.mu.Unlock()

	summary.CaptureOK = true
	summary.SampleCount = len(samples)
	if len(samples) > 0 && samples[0].Origin == types.OriginFallback {
		summary.FallbackUsed = true
		d.metrics.FallbackSweepsTotal.Inc()
	}

	result, err := d.analyzer.AnalyzeSweep(ctx, samples)
	summary.UploadsOK = len(result.Verdicts)
	summary.UploadsFailed = result.Failed
	d.metrics.UploadFailuresTotal.Add(float64(result.Failed))
	if err != nil {
		slog.Warn("sweep analysis aborted", "error", err)
		d.finishCycle(summary, start)
		return
	}

	if result.Incident == nil {
		slog.Info("no threat detected",
			"samples", len(samples),
			"failed_uploads", result.Failed,
		)
		d.finishCycle(summary, start)
		return
	}

	incident := *result.Incident
	d.stats.IncThreats()
	d.metrics.ThreatsTotal.Inc()
	summary.ThreatDetected = true
	summary.Predator = incident.Verdict.PredatorLabel
	summary.Confidence = incident.Verdict.Confidence

	slog.Warn("predator incident confirmed",
		"predator", incident.Verdict.PredatorLabel,
		"confidence", incident.Verdict.Confidence,
		"positives", incident.PositiveCount,
		"image_id", incident.Verdict.RemoteImageID,
	)

	// Alert first: the farm hears about the incident even if the
	// sprinkler run blocks for its full duration or fails outright.
	d.sendAlert(ctx, incident)
	summary.ActuationRan = d.runDeterrent(ctx)
	d.finishCycle(summary, start)
}

// runDeterrent activates the sprinkler for the configured duration and
// reports whether a full activation completed.
func (d *Defense) runDeterrent(ctx context.Context) bool {
	duration := time.Duration(d.cfg.Sprinkler.DurationS) * time.Second

	d.metrics.SetDeterrentActive(true)
	d.publish(&types.DeterrentEvent{
		SensorID:  d.cfg.SensorID,
		Action:    "activated",
		DurationS: d.cfg.Sprinkler.DurationS,
		Success:   true,
		Timestamp: types.NowStamp(),
	})

	err := d.actuator.RunDeterrentFor(ctx, duration)
	d.metrics.SetDeterrentActive(false)

	if err != nil {
		if errors.Is(err, actuator.ErrSprinklerUnavailable) {
			slog.Warn("sprinkler unavailable, deterrent skipped")
		} else {
			slog.Error("deterrent run failed", "error", err)
		}
		d.publish(&types.DeterrentEvent{
			SensorID:  d.cfg.SensorID,
			Action:    "forced_off",
			Success:   false,
			Timestamp: types.NowStamp(),
		})
		return false
	}

	d.stats.IncActuations()
	d.metrics.ActuationsTotal.Inc()
	d.publish(&types.DeterrentEvent{
		SensorID:  d.cfg.SensorID,
		Action:    "deactivated",
		DurationS: d.cfg.Sprinkler.DurationS,
		Success:   true,
		Timestamp: types.NowStamp(),
	})
	return true
}

// sendAlert enriches and delivers the alert for an incident. Delivery
// is best effort: failures are logged and mirrored on the broker.
func (d *Defense) sendAlert(ctx context.Context, incident types.Incident) {
	dctx := directory.Context{}
	if d.resolver != nil {
		dctx = d.resolver.Resolve(ctx, d.cfg.SensorID)
	}

	alert := alerting.Compose(incident, d.cfg.SensorID, dctx)

	delivered := true
	if err := d.dispatcher.Send(ctx, alert); err != nil {
		slog.Warn("alert delivery failed", "error", err)
		delivered = false
	}

	d.publish(&types.AlertEvent{Alert: alert, Delivered: delivered})
}

// finishCycle stamps and emits the cycle summary
func (d *Defense) finishCycle(summary *types.CycleSummary, start time.Time) {
	elapsed := time.Since(start)
	summary.DurationMS = elapsed.Milliseconds()
	summary.Stats = d.stats.Snapshot()
	summary.Timestamp = types.NowStamp()

	d.metrics.CycleDuration.Observe(elapsed.Seconds())
	d.publish(summary)

	slog.Info("defense cycle finished",
		"duration_ms", summary.DurationMS,
		"threat", summary.ThreatDetected,
		"total_checks", summary.Stats.TotalChecks,
	)
}

// publish emits a telemetry event when a broker is configured
func (d *Defense) publish(event types.Event) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(event); err != nil {
		slog.Warn("telemetry publish failed", "kind", event.Kind(), "error", err)
	}
}

// paused reports whether monitoring is paused
func (d *Defense) paused() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isPaused
}

// checkInterval returns the current cycle interval
func (d *Defense) checkInterval() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return time.Duration(d.cfg.Monitor.CheckIntervalS) * time.Second
}
