package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bonching/apiculture-iot/internal/types"
)

// yesNo accepts both the boolean and the legacy "Y"/"N" string form the
// platform has emitted over time. Any other JSON type is a parse error.
type yesNo bool

// UnmarshalJSON implements json.Unmarshaler
func (v *yesNo) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = yesNo(b)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		// Only an explicit yes activates; everything else is a no.
		*v = strings.ToUpper(strings.TrimSpace(s)) == "Y"
		return nil
	}

	return fmt.Errorf("invalid run_sprinkler value: %s", string(data))
}

// analysisResponse is the platform's verdict for one uploaded image.
type analysisResponse struct {
	RunSprinkler     yesNo             `json:"run_sprinkler"`
	ImageID          string            `json:"imageId"`
	PredatorAnalysis *predatorAnalysis `json:"predator_analysis"`
}

type predatorAnalysis struct {
	Predator   string           `json:"predator"`
	Confidence float64          `json:"confidence"`
	Details    *analysisDetails `json:"details"`
}

type analysisDetails struct {
	Description string `json:"description"`
}

// toVerdict binds the response to the sample it describes. Missing
// analysis blocks leave the enrichment fields empty.
func (r *analysisResponse) toVerdict(sample types.SweepSample) types.Verdict {
	v := types.Verdict{
		Sample:         sample,
		ThreatDetected: bool(r.RunSprinkler),
		RemoteImageID:  r.ImageID,
	}

	if r.PredatorAnalysis != nil {
		v.PredatorLabel = r.PredatorAnalysis.Predator
		v.Confidence = r.PredatorAnalysis.Confidence
		if r.PredatorAnalysis.Details != nil {
			v.MethodDescription = r.PredatorAnalysis.Details.Description
		}
	}

	return v
}
