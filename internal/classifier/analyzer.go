package classifier

import (
	"context"
	"log/slog"
	"os"

	"github.com/bonching/apiculture-iot/internal/types"
)

// uploader is satisfied by Client; narrowed for tests.
type uploader interface {
	Analyze(ctx context.Context, sample types.SweepSample) (types.Verdict, error)
}

// Analyzer runs a full sweep through threat detection and reduces the
// verdicts to at most one incident. The local sample files are removed
// once analysis finishes, whatever the outcome.
type Analyzer struct {
	client uploader
}

// NewAnalyzer creates an analyzer over the given classifier client
func NewAnalyzer(client uploader) *Analyzer {
	return &Analyzer{client: client}
}

// SweepResult is the analysis outcome for one sweep.
type SweepResult struct {
	Verdicts []types.Verdict
	Incident *types.Incident
	Failed   int // uploads that produced no verdict
}

// AnalyzeSweep uploads every sample in order. A failed upload skips that
// sample and the sweep continues; only context cancellation aborts it.
func (a *Analyzer) AnalyzeSweep(ctx context.Context, samples []types.SweepSample) (SweepResult, error) {
	defer deleteSamples(samples)

	var result SweepResult
	for _, sample := range samples {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		verdict, err := a.client.Analyze(ctx, sample)
		if err != nil {
			slog.Warn("image analysis failed",
				"path", sample.FilePath,
				"angle", sample.AngleDegrees,
				"trace_id", sample.TraceID,
				"error", err,
			)
			result.Failed++
			continue
		}

		slog.Debug("verdict received",
			"angle", sample.AngleDegrees,
			"threat", verdict.ThreatDetected,
			"confidence", verdict.Confidence,
			"trace_id", sample.TraceID,
		)
		result.Verdicts = append(result.Verdicts, verdict)
	}

	result.Incident = Reduce(result.Verdicts)
	return result, nil
}

// Reduce picks the single highest-confidence positive verdict. Equal
// confidences keep the earliest verdict in sweep order.
func Reduce(verdicts []types.Verdict) *types.Incident {
	var best *types.Verdict
	positives := 0

	for i := range verdicts {
		v := &verdicts[i]
		if !v.ThreatDetected {
			continue
		}
		positives++
		if best == nil || v.Confidence > best.Confidence {
			best = v
		}
	}

	if best == nil {
		return nil
	}
	return &types.Incident{Verdict: *best, PositiveCount: positives}
}

// deleteSamples removes the sweep files. The device keeps no images
// between cycles.
func deleteSamples(samples []types.SweepSample) {
	removed := 0
	for _, sample := range samples {
		if err := os.Remove(sample.FilePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to delete sample", "path", sample.FilePath, "error", err)
			continue
		}
		removed++
	}
	slog.Debug("sweep samples deleted", "removed", removed, "total", len(samples))
}
