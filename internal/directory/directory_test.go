package directory

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSource struct {
	sensors map[string]SensorRecord
	hives   map[string]HiveRecord
	farms   map[string]FarmRecord

	sensorCalls int
	hiveCalls   int
	farmCalls   int

	err error
}

func (f *fakeSource) Sensor(ctx context.Context, id string) (*SensorRecord, error) {
	f.sensorCalls++
	if f.err != nil {
		return nil, f.err
	}
	if rec, ok := f.sensors[id]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (f *fakeSource) Hive(ctx context.Context, id string) (*HiveRecord, error) {
	f.hiveCalls++
	if f.err != nil {
		return nil, f.err
	}
	if rec, ok := f.hives[id]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (f *fakeSource) Farm(ctx context.Context, id string) (*FarmRecord, error) {
	f.farmCalls++
	if f.err != nil {
		return nil, f.err
	}
	if rec, ok := f.farms[id]; ok {
		return &rec, nil
	}
	return nil, nil
}

func fullSource() *fakeSource {
	return &fakeSource{
		sensors: map[string]SensorRecord{
			"sensor-7": {ID: "sensor-7", Name: "North Fence Camera", HiveID: "hive-3"},
		},
		hives: map[string]HiveRecord{
			"hive-3": {ID: "hive-3", Name: "Hive 3", FarmID: "farm-1"},
		},
		farms: map[string]FarmRecord{
			"farm-1": {ID: "farm-1", Name: "Valley Farm"},
		},
	}
}

func TestResolveFullChain(t *testing.T) {
	d := newDirectory(fullSource(), 16, time.Second)

	got := d.Resolve(context.Background(), "sensor-7")

	want := Context{
		SensorName: "North Fence Camera",
		HiveID:     "hive-3",
		HiveName:   "Hive 3",
		FarmID:     "farm-1",
		FarmName:   "Valley Farm",
	}
	if got != want {
		t.Errorf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestResolvePartialChains(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fakeSource)
		want   Context
	}{
		{
			name:   "unknown sensor",
			mutate: func(s *fakeSource) { delete(s.sensors, "sensor-7") },
			want:   Context{},
		},
		{
			name:   "hive missing",
			mutate: func(s *fakeSource) { delete(s.hives, "hive-3") },
			want:   Context{SensorName: "North Fence Camera"},
		},
		{
			name:   "farm missing",
			mutate: func(s *fakeSource) { delete(s.farms, "farm-1") },
			want: Context{
				SensorName: "North Fence Camera",
				HiveID:     "hive-3",
				HiveName:   "Hive 3",
			},
		},
		{
			name: "sensor without hive link",
			mutate: func(s *fakeSource) {
				s.sensors["sensor-7"] = SensorRecord{ID: "sensor-7", Name: "North Fence Camera"}
			},
			want: Context{SensorName: "North Fence Camera"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := fullSource()
			tt.mutate(source)
			d := newDirectory(source, 16, time.Second)

			if got := d.Resolve(context.Background(), "sensor-7"); got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolveBackendErrorDegrades(t *testing.T) {
	source := fullSource()
	source.err = errors.New("connection reset")
	d := newDirectory(source, 16, time.Second)

	if got := d.Resolve(context.Background(), "sensor-7"); got != (Context{}) {
		t.Errorf("Resolve() = %+v, want empty context on backend error", got)
	}
}

func TestResolveCachesHits(t *testing.T) {
	source := fullSource()
	d := newDirectory(source, 16, time.Second)

	for i := 0; i < 3; i++ {
		if got := d.Resolve(context.Background(), "sensor-7"); got.FarmName != "Valley Farm" {
			t.Fatalf("Resolve() attempt %d lost the chain: %+v", i, got)
		}
	}

	if source.sensorCalls != 1 || source.hiveCalls != 1 || source.farmCalls != 1 {
		t.Errorf("backend calls = %d/%d/%d, want 1/1/1 (cached)",
			source.sensorCalls, source.hiveCalls, source.farmCalls)
	}
}

func TestResolveMissesAreNotCached(t *testing.T) {
	source := fullSource()
	delete(source.sensors, "sensor-7")
	d := newDirectory(source, 16, time.Second)

	if got := d.Resolve(context.Background(), "sensor-7"); got != (Context{}) {
		t.Fatalf("Resolve() = %+v, want empty", got)
	}

	// The sensor appears later; the next cycle must see it.
	source.sensors["sensor-7"] = SensorRecord{ID: "sensor-7", Name: "North Fence Camera", HiveID: "hive-3"}

	if got := d.Resolve(context.Background(), "sensor-7"); got.SensorName != "North Fence Camera" {
		t.Errorf("Resolve() after repair = %+v, want resolved sensor", got)
	}
	if source.sensorCalls != 2 {
		t.Errorf("sensorCalls = %d, want 2 (miss not cached)", source.sensorCalls)
	}
}

func TestResolveDisabled(t *testing.T) {
	d := newDirectory(nil, 16, time.Second)

	if got := d.Resolve(context.Background(), "sensor-7"); got != (Context{}) {
		t.Errorf("Resolve() = %+v, want empty context when disabled", got)
	}
}
