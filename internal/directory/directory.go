// Package directory resolves a sensor's place in the platform hierarchy
// (sensor → hive → farm) to enrich outgoing alerts. Lookups are cached;
// a miss or an unreachable backend degrades to an empty context and
// never blocks alert delivery.
package directory

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.mongodb.org/mongo-driver/mongo"
)

// Context is the resolved hierarchy for one sensor. Unresolved fields
// stay empty and are omitted from the alert payload.
type Context struct {
	SensorName string
	HiveID     string
	HiveName   string
	FarmID     string
	FarmName   string
}

// SensorRecord is a directory entry for a sensor
type SensorRecord struct {
	ID     string
	Name   string
	HiveID string
}

// HiveRecord is a directory entry for a hive
type HiveRecord struct {
	ID     string
	Name   string
	FarmID string
}

// FarmRecord is a directory entry for a farm
type FarmRecord struct {
	ID   string
	Name string
}

// recordSource abstracts the platform database. A nil record with a nil
// error means the id does not exist; that is not a failure.
type recordSource interface {
	Sensor(ctx context.Context, id string) (*SensorRecord, error)
	Hive(ctx context.Context, id string) (*HiveRecord, error)
	Farm(ctx context.Context, id string) (*FarmRecord, error)
}

// Directory caches hierarchy lookups in front of a record source.
type Directory struct {
	source  recordSource
	client  *mongo.Client
	timeout time.Duration

	sensors *lru.Cache[string, SensorRecord]
	hives   *lru.Cache[string, HiveRecord]
	farms   *lru.Cache[string, FarmRecord]
}

func newDirectory(source recordSource, cacheSize int, timeout time.Duration) *Directory {
	// lru.New only fails on a non-positive size, which the config
	// validator already rejects.
	sensors, _ := lru.New[string, SensorRecord](cacheSize)
	hives, _ := lru.New[string, HiveRecord](cacheSize)
	farms, _ := lru.New[string, FarmRecord](cacheSize)

	return &Directory{
		source:  source,
		timeout: timeout,
		sensors: sensors,
		hives:   hives,
		farms:   farms,
	}
}

// Resolve walks the hierarchy for the given sensor. Every step that
// cannot be resolved simply ends the walk; the fields gathered so far
// are returned.
func (d *Directory) Resolve(ctx context.Context, sensorID string) Context {
	var out Context
	if d.source == nil {
		return out
	}

	lookCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	sensor := d.sensor(lookCtx, sensorID)
	if sensor == nil {
		return out
	}
	out.SensorName = sensor.Name
	if sensor.HiveID == "" {
		return out
	}

	hive := d.hive(lookCtx, sensor.HiveID)
	if hive == nil {
		return out
	}
	out.HiveID = hive.ID
	out.HiveName = hive.Name
	if hive.FarmID == "" {
		return out
	}

	farm := d.farm(lookCtx, hive.FarmID)
	if farm == nil {
		return out
	}
	out.FarmID = farm.ID
	out.FarmName = farm.Name

	return out
}

// Misses are not cached so fixes on the platform side show up on the
// next cycle.

func (d *Directory) sensor(ctx context.Context, id string) *SensorRecord {
	if rec, ok := d.sensors.Get(id); ok {
		return &rec
	}
	rec, err := d.source.Sensor(ctx, id)
	if err != nil {
		slog.Warn("sensor lookup failed", "sensor_id", id, "error", err)
		return nil
	}
	if rec == nil {
		slog.Debug("sensor not found in directory", "sensor_id", id)
		return nil
	}
	d.sensors.Add(id, *rec)
	return rec
}

func (d *Directory) hive(ctx context.Context, id string) *HiveRecord {
	if rec, ok := d.hives.Get(id); ok {
		return &rec
	}
	rec, err := d.source.Hive(ctx, id)
	if err != nil {
		slog.Warn("hive lookup failed", "hive_id", id, "error", err)
		return nil
	}
	if rec == nil {
		slog.Debug("hive not found in directory", "hive_id", id)
		return nil
	}
	d.hives.Add(id, *rec)
	return rec
}

func (d *Directory) farm(ctx context.Context, id string) *FarmRecord {
	if rec, ok := d.farms.Get(id); ok {
		return &rec
	}
	rec, err := d.source.Farm(ctx, id)
	if err != nil {
		slog.Warn("farm lookup failed", "farm_id", id, "error", err)
		return nil
	}
	if rec == nil {
		slog.Debug("farm not found in directory", "farm_id", id)
		return nil
	}
	d.farms.Add(id, *rec)
	return rec
}
