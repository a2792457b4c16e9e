package types

// Verdict is the typed result of one sample's remote classification.
type Verdict struct {
	// Sample is the sweep sample this verdict was produced for
	Sample SweepSample
	// ThreatDetected reports whether the classifier asked for the deterrent
	ThreatDetected bool
	// Confidence is the classifier's confidence in [0,1]
	Confidence float64
	// PredatorLabel names the detected predator, if any
	PredatorLabel string
	// MethodDescription describes how the detection was made
	MethodDescription string
	// RemoteImageID references the uploaded image on the platform
	RemoteImageID string
}

// Incident is the single highest-confidence positive verdict selected from
// one sweep. Lower-confidence positives in the same sweep are counted but do
// not change the verdict that gets alerted on.
type Incident struct {
	// Verdict is the winning verdict (maximum confidence, first seen on ties)
	Verdict Verdict
	// PositiveCount is how many samples in the sweep reported a threat
	PositiveCount int
}
