package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bonching/apiculture-iot/internal/classifier"
	"github.com/bonching/apiculture-iot/internal/config"
	"github.com/bonching/apiculture-iot/internal/directory"
	"github.com/bonching/apiculture-iot/internal/metrics"
	"github.com/bonching/apiculture-iot/internal/types"
)

type fakeSweeper struct {
	mu      sync.Mutex
	samples []types.SweepSample
	errs    []error // error per call, nil entry means success
	calls   int
	dirs    []types.SweepDirection
	notify  chan struct{}
}

func (f *fakeSweeper) CaptureSweep(ctx context.Context, dir types.SweepDirection) ([]types.SweepSample, error) {
	f.mu.Lock()
	var err error
	if f.calls < len(f.errs) {
		err = f.errs[f.calls]
	}
	f.calls++
	f.dirs = append(f.dirs, dir)
	f.mu.Unlock()

	if f.notify != nil {
		select {
		case f.notify <- struct{}{}:
		default:
		}
	}
	if err != nil {
		return nil, err
	}
	return f.samples, nil
}

func (f *fakeSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAnalyzer struct {
	result classifier.SweepResult
	err    error
	calls  int
	panics bool
}

func (f *fakeAnalyzer) AnalyzeSweep(ctx context.Context, samples []types.SweepSample) (classifier.SweepResult, error) {
	f.calls++
	if f.panics {
		panic("analyzer exploded")
	}
	return f.result, f.err
}

type fakeDeterrent struct {
	runErr    error
	runs      int
	durations []time.Duration
	offCalls  int
	active    bool
}

func (f *fakeDeterrent) RunDeterrentFor(ctx context.Context, d time.Duration) error {
	f.runs++
	f.durations = append(f.durations, d)
	return f.runErr
}

func (f *fakeDeterrent) SetDeterrent(on bool) error {
	if !on {
		f.offCalls++
	}
	f.active = on
	return nil
}

func (f *fakeDeterrent) DeterrentActive() bool      { return f.active }
func (f *fakeDeterrent) Availability() (bool, bool) { return true, true }
func (f *fakeDeterrent) Close() error               { f.offCalls++; return nil }

type fakeResolver struct {
	ctx   directory.Context
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, sensorID string) directory.Context {
	f.calls++
	return f.ctx
}

func (f *fakeResolver) Close(ctx context.Context) error { return nil }

type fakeSender struct {
	err    error
	alerts []types.Alert
}

func (f *fakeSender) Send(ctx context.Context, alert types.Alert) error {
	f.alerts = append(f.alerts, alert)
	return f.err
}

type fakePublisher struct {
	events []types.Event
}

func (f *fakePublisher) Publish(event types.Event) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) lastSummary(t *testing.T) *types.CycleSummary {
	t.Helper()
	for i := len(f.events) - 1; i >= 0; i-- {
		if summary, ok := f.events[i].(*types.CycleSummary); ok {
			return summary
		}
	}
	t.Fatal("no cycle summary published")
	return nil
}

func (f *fakePublisher) kinds() []string {
	kinds := make([]string, 0, len(f.events))
	for _, e := range f.events {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

type cycleFixture struct {
	defense  *Defense
	sweeper  *fakeSweeper
	analyzer *fakeAnalyzer
	det      *fakeDeterrent
	resolver *fakeResolver
	sender   *fakeSender
	pub      *fakePublisher
}

func newCycleFixture(t *testing.T) *cycleFixture {
	t.Helper()

	cfg := &config.Config{
		SensorID: "sensor-7",
		Monitor: config.MonitorConfig{
			CheckIntervalS: 300,
			SampleCount:    5,
			PhotoDir:       t.TempDir(),
		},
		Servo:     config.ServoConfig{MinAngle: -90, MaxAngle: 90},
		Sprinkler: config.SprinklerConfig{DurationS: 10},
	}

	f := &cycleFixture{
		sweeper:  &fakeSweeper{samples: liveSamples(5), notify: make(chan struct{}, 10)},
		analyzer: &fakeAnalyzer{},
		det:      &fakeDeterrent{},
		resolver: &fakeResolver{},
		sender:   &fakeSender{},
		pub:      &fakePublisher{},
	}

	f.defense = &Defense{
		cfg:        cfg,
		actuator:   f.det,
		sampler:    f.sweeper,
		analyzer:   f.analyzer,
		resolver:   f.resolver,
		dispatcher: f.sender,
		publisher:  f.pub,
		metrics:    metrics.New(prometheus.NewRegistry()),
		stats:      &types.CycleStats{},
		direction:  types.SweepForward,
		kick:       make(chan struct{}, 1),
	}
	return f
}

func liveSamples(n int) []types.SweepSample {
	samples := make([]types.SweepSample, n)
	for i := range samples {
		samples[i] = types.SweepSample{
			AngleDegrees: -90 + i*45,
			FilePath:     fmt.Sprintf("sample_%d.jpg", i),
			Origin:       types.OriginLive,
		}
	}
	return samples
}

func incidentResult(label string, confidence float64) classifier.SweepResult {
	verdict := types.Verdict{
		ThreatDetected:    true,
		Confidence:        confidence,
		PredatorLabel:     label,
		MethodDescription: "thermal signature match",
		RemoteImageID:     "img-1",
	}
	return classifier.SweepResult{
		Verdicts: []types.Verdict{verdict},
		Incident: &types.Incident{Verdict: verdict, PositiveCount: 1},
	}
}

func cleanResult(n int) classifier.SweepResult {
	verdicts := make([]types.Verdict, n)
	return classifier.SweepResult{Verdicts: verdicts}
}

func TestRunCycleNoThreat(t *testing.T) {
	f := newCycleFixture(t)
	f.analyzer.result = cleanResult(5)

	f.defense.runCycle(context.Background())

	snapshot := f.defense.stats.Snapshot()
	if snapshot.TotalChecks != 1 {
		t.Errorf("TotalChecks = %d, want 1", snapshot.TotalChecks)
	}
	if snapshot.TotalThreats != 0 {
		t.Errorf("TotalThreats = %d, want 0", snapshot.TotalThreats)
	}
	if f.det.runs != 0 {
		t.Errorf("deterrent runs = %d, want 0", f.det.runs)
	}
	if len(f.sender.alerts) != 0 {
		t.Errorf("alerts sent = %d, want 0", len(f.sender.alerts))
	}

	summary := f.pub.lastSummary(t)
	if summary.ThreatDetected {
		t.Error("summary.ThreatDetected = true, want false")
	}
	if !summary.CaptureOK || summary.SampleCount != 5 || summary.UploadsOK != 5 {
		t.Errorf("summary = %+v, want capture ok with 5 samples and 5 uploads", summary)
	}
}

func TestRunCycleThreatRunsDeterrentAndAlert(t *testing.T) {
	f := newCycleFixture(t)
	f.analyzer.result = incidentResult("raccoon", 0.92)

	f.defense.runCycle(context.Background())

	snapshot := f.defense.stats.Snapshot()
	if snapshot.TotalThreats != 1 {
		t.Errorf("TotalThreats = %d, want 1", snapshot.TotalThreats)
	}
	if snapshot.TotalActuations != 1 {
		t.Errorf("TotalActuations = %d, want 1", snapshot.TotalActuations)
	}
	if f.det.runs != 1 {
		t.Fatalf("deterrent runs = %d, want 1", f.det.runs)
	}
	if f.det.durations[0] != 10*time.Second {
		t.Errorf("deterrent duration = %v, want 10s", f.det.durations[0])
	}

	if len(f.sender.alerts) != 1 {
		t.Fatalf("alerts sent = %d, want 1", len(f.sender.alerts))
	}
	alert := f.sender.alerts[0]
	if alert.Message != "raccoon detected with 92% confidence" {
		t.Errorf("alert message = %q, want raccoon at 92%%", alert.Message)
	}
	if alert.SensorID != "sensor-7" || alert.Type != "predator_detected" {
		t.Errorf("alert = %+v, want predator_detected for sensor-7", alert)
	}

	summary := f.pub.lastSummary(t)
	if !summary.ThreatDetected || !summary.ActuationRan {
		t.Errorf("summary = %+v, want threat with actuation", summary)
	}
	if summary.Predator != "raccoon" || summary.Confidence != 0.92 {
		t.Errorf("summary predator = %q/%v, want raccoon/0.92", summary.Predator, summary.Confidence)
	}

	// The alert must leave before the sprinkler run starts.
	want := []string{"alert", "deterrent", "deterrent", "cycle_summary"}
	got := f.pub.kinds()
	if len(got) != len(want) {
		t.Fatalf("event kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event kinds = %v, want %v", got, want)
		}
	}
}

func TestRunCycleCaptureFailureKeepsDirection(t *testing.T) {
	f := newCycleFixture(t)
	f.sweeper.errs = []error{fmt.Errorf("camera session failed")}

	f.defense.runCycle(context.Background())

	f.defense.mu.RLock()
	dir := f.defense.direction
	f.defense.mu.RUnlock()
	if dir != types.SweepForward {
		t.Errorf("direction = %v, want unchanged SweepForward", dir)
	}
	if f.analyzer.calls != 0 {
		t.Errorf("analyzer calls = %d, want 0", f.analyzer.calls)
	}
	if snapshot := f.defense.stats.Snapshot(); snapshot.TotalChecks != 1 {
		t.Errorf("TotalChecks = %d, want 1 even on failure", snapshot.TotalChecks)
	}

	summary := f.pub.lastSummary(t)
	if summary.CaptureOK {
		t.Error("summary.CaptureOK = true, want false")
	}
}

func TestRunCycleDirectionTogglesOnlyOnCaptureSuccess(t *testing.T) {
	f := newCycleFixture(t)
	f.analyzer.result = cleanResult(5)
	// Second cycle fails to capture, so it keeps the backward arc.
	f.sweeper.errs = []error{nil, fmt.Errorf("capture failed"), nil}

	expected := []types.SweepDirection{types.SweepForward, types.SweepBackward, types.SweepBackward}
	for range expected {
		f.defense.runCycle(context.Background())
	}

	if len(f.sweeper.dirs) != 3 {
		t.Fatalf("capture calls = %d, want 3", len(f.sweeper.dirs))
	}
	for i, want := range expected {
		if f.sweeper.dirs[i] != want {
			t.Errorf("cycle %d direction = %v, want %v", i, f.sweeper.dirs[i], want)
		}
	}
}

func TestRunCycleFallbackSweepIsReported(t *testing.T) {
	f := newCycleFixture(t)
	for i := range f.sweeper.samples {
		f.sweeper.samples[i].Origin = types.OriginFallback
	}
	f.analyzer.result = cleanResult(5)

	f.defense.runCycle(context.Background())

	summary := f.pub.lastSummary(t)
	if !summary.FallbackUsed {
		t.Error("summary.FallbackUsed = false, want true")
	}
	// A fallback sweep still advances the arc for the next live attempt.
	f.defense.mu.RLock()
	dir := f.defense.direction
	f.defense.mu.RUnlock()
	if dir != types.SweepBackward {
		t.Errorf("direction = %v, want toggled SweepBackward", dir)
	}
}

func TestRunCycleDeterrentFailureDoesNotCountActuation(t *testing.T) {
	f := newCycleFixture(t)
	f.analyzer.result = incidentResult("fox", 0.8)
	f.det.runErr = fmt.Errorf("sprinkler unavailable")

	f.defense.runCycle(context.Background())

	if snapshot := f.defense.stats.Snapshot(); snapshot.TotalActuations != 0 {
		t.Errorf("TotalActuations = %d, want 0 on failed run", snapshot.TotalActuations)
	}
	if summary := f.pub.lastSummary(t); summary.ActuationRan {
		t.Error("summary.ActuationRan = true, want false")
	}
	// The alert still goes out even when the sprinkler is broken.
	if len(f.sender.alerts) != 1 {
		t.Errorf("alerts sent = %d, want 1", len(f.sender.alerts))
	}
}

func TestRunCycleAlertFailureIsNonFatal(t *testing.T) {
	f := newCycleFixture(t)
	f.analyzer.result = incidentResult("raccoon", 0.9)
	f.sender.err = fmt.Errorf("endpoint down")

	f.defense.runCycle(context.Background())

	var alertEvent *types.AlertEvent
	for _, e := range f.pub.events {
		if ae, ok := e.(*types.AlertEvent); ok {
			alertEvent = ae
		}
	}
	if alertEvent == nil {
		t.Fatal("no alert event published")
	}
	if alertEvent.Delivered {
		t.Error("alert event Delivered = true, want false")
	}
	// Summary still closes the cycle.
	f.pub.lastSummary(t)
}

func TestRunCycleEnrichesAlertFromDirectory(t *testing.T) {
	f := newCycleFixture(t)
	f.analyzer.result = incidentResult("raccoon", 0.9)
	f.resolver.ctx = directory.Context{
		SensorName: "North Fence Camera",
		HiveID:     "hive-3",
		HiveName:   "Hive 3",
		FarmID:     "farm-1",
		FarmName:   "Valley Farm",
	}

	f.defense.runCycle(context.Background())

	if len(f.sender.alerts) != 1 {
		t.Fatalf("alerts sent = %d, want 1", len(f.sender.alerts))
	}
	alert := f.sender.alerts[0]
	if alert.HiveName != "Hive 3" || alert.FarmName != "Valley Farm" {
		t.Errorf("alert enrichment = %q/%q, want Hive 3/Valley Farm", alert.HiveName, alert.FarmName)
	}
}

func TestRunCycleRecoversFromPanic(t *testing.T) {
	f := newCycleFixture(t)
	f.analyzer.panics = true

	// Must not crash the test binary.
	f.defense.runCycle(context.Background())

	if snapshot := f.defense.stats.Snapshot(); snapshot.TotalChecks != 1 {
		t.Errorf("TotalChecks = %d, want 1", snapshot.TotalChecks)
	}
}

func TestRunCycleEmitsDeterrentEvents(t *testing.T) {
	f := newCycleFixture(t)
	f.analyzer.result = incidentResult("raccoon", 0.9)

	f.defense.runCycle(context.Background())

	var actions []string
	for _, e := range f.pub.events {
		if de, ok := e.(*types.DeterrentEvent); ok {
			actions = append(actions, de.Action)
		}
	}
	if len(actions) != 2 || actions[0] != "activated" || actions[1] != "deactivated" {
		t.Errorf("deterrent actions = %v, want [activated deactivated]", actions)
	}
}

func TestPauseResume(t *testing.T) {
	f := newCycleFixture(t)

	if err := f.defense.pauseMonitoring(); err != nil {
		t.Fatalf("pauseMonitoring() error = %v", err)
	}
	if err := f.defense.pauseMonitoring(); err == nil {
		t.Error("second pauseMonitoring() error = nil, want already paused")
	}
	if err := f.defense.resumeMonitoring(); err != nil {
		t.Fatalf("resumeMonitoring() error = %v", err)
	}
	if err := f.defense.resumeMonitoring(); err == nil {
		t.Error("second resumeMonitoring() error = nil, want not paused")
	}
}

func TestTriggerSweep(t *testing.T) {
	f := newCycleFixture(t)

	if err := f.defense.triggerSweep(); err == nil {
		t.Error("triggerSweep() on stopped service error = nil, want error")
	}

	f.defense.mu.Lock()
	f.defense.isRunning = true
	f.defense.mu.Unlock()

	if err := f.defense.triggerSweep(); err != nil {
		t.Fatalf("triggerSweep() error = %v", err)
	}
	if err := f.defense.triggerSweep(); err == nil {
		t.Error("second triggerSweep() error = nil, want pending error")
	}
}

func TestSetCheckInterval(t *testing.T) {
	f := newCycleFixture(t)

	tests := []struct {
		name    string
		seconds float64
		wantErr bool
	}{
		{"valid", 60, false},
		{"too small", 5, true},
		{"too large", 100000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.defense.setCheckInterval(tt.seconds)
			if (err != nil) != tt.wantErr {
				t.Errorf("setCheckInterval(%v) error = %v, wantErr %v", tt.seconds, err, tt.wantErr)
			}
		})
	}

	if got := f.defense.checkInterval(); got != 60*time.Second {
		t.Errorf("checkInterval() = %v, want 60s", got)
	}
}

func TestDeterrentOff(t *testing.T) {
	f := newCycleFixture(t)
	f.det.active = true

	if err := f.defense.deterrentOff(); err != nil {
		t.Fatalf("deterrentOff() error = %v", err)
	}
	if f.det.active {
		t.Error("deterrent still active after deterrentOff()")
	}
}

func TestMonitorLoopSleepsBeforeFirstCycle(t *testing.T) {
	f := newCycleFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.defense.wg.Add(1)
	go f.defense.monitorLoop(ctx)

	select {
	case <-f.sweeper.notify:
		t.Error("cycle ran before the first interval elapsed")
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	f.defense.wg.Wait()

	if f.sweeper.callCount() != 0 {
		t.Errorf("capture calls = %d, want 0", f.sweeper.callCount())
	}
}

func TestMonitorLoopKickRunsImmediateCycle(t *testing.T) {
	f := newCycleFixture(t)
	f.analyzer.result = cleanResult(5)
	ctx, cancel := context.WithCancel(context.Background())

	f.defense.mu.Lock()
	f.defense.isRunning = true
	f.defense.mu.Unlock()

	f.defense.wg.Add(1)
	go f.defense.monitorLoop(ctx)

	if err := f.defense.triggerSweep(); err != nil {
		t.Fatalf("triggerSweep() error = %v", err)
	}

	select {
	case <-f.sweeper.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("kick did not trigger a cycle")
	}

	cancel()
	f.defense.wg.Wait()

	if f.sweeper.callCount() != 1 {
		t.Errorf("capture calls = %d, want 1", f.sweeper.callCount())
	}
}

func TestMonitorLoopKickBypassesPause(t *testing.T) {
	f := newCycleFixture(t)
	f.analyzer.result = cleanResult(5)
	ctx, cancel := context.WithCancel(context.Background())

	f.defense.mu.Lock()
	f.defense.isRunning = true
	f.defense.isPaused = true
	f.defense.mu.Unlock()

	f.defense.wg.Add(1)
	go f.defense.monitorLoop(ctx)

	if err := f.defense.triggerSweep(); err != nil {
		t.Fatalf("triggerSweep() error = %v", err)
	}

	select {
	case <-f.sweeper.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("kick did not bypass pause")
	}

	cancel()
	f.defense.wg.Wait()
}
