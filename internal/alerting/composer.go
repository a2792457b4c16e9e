// Package alerting builds and delivers the operator-facing alert for a
// confirmed incident. One incident produces exactly one alert; delivery
// is best effort and never retried within a cycle.
package alerting

import (
	"fmt"
	"time"

	"github.com/bonching/apiculture-iot/internal/directory"
	"github.com/bonching/apiculture-iot/internal/types"
)

// Compose builds the alert payload for an incident. Directory fields
// that were not resolved stay empty and drop out of the JSON payload.
// The timestamp is taken here, at build time, not at capture time.
func Compose(incident types.Incident, sensorID string, dctx directory.Context) types.Alert {
	v := incident.Verdict

	label := v.PredatorLabel
	if label == "" {
		label = "Unknown predator"
	}

	return types.Alert{
		Type:            "predator_detected",
		Severity:        "critical",
		Title:           "Predator detected",
		Message:         fmt.Sprintf("%s detected with %d%% confidence", label, int(v.Confidence*100)),
		SensorID:        sensorID,
		SensorName:      dctx.SensorName,
		HiveID:          dctx.HiveID,
		HiveName:        dctx.HiveName,
		FarmID:          dctx.FarmID,
		FarmName:        dctx.FarmName,
		Predator:        v.PredatorLabel,
		Confidence:      v.Confidence,
		ImageID:         v.RemoteImageID,
		DetectionMethod: v.MethodDescription,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
}
