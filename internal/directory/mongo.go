package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bonching/apiculture-iot/internal/config"
)

// mongoSource reads the platform's directory collections.
type mongoSource struct {
	db *mongo.Database
}

// New connects to the platform database. An empty URI disables lookups
// entirely; Resolve then returns empty contexts. An unreachable backend
// at startup is logged but not fatal, the driver reconnects on demand.
func New(ctx context.Context, cfg config.DirectoryConfig) (*Directory, error) {
	timeout := time.Duration(cfg.TimeoutS) * time.Second

	if cfg.MongoURI == "" {
		slog.Info("directory lookups disabled, alerts will not be enriched")
		return newDirectory(nil, cfg.CacheSize, timeout), nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to create directory client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		slog.Warn("directory database unreachable at startup", "error", err)
	} else {
		slog.Info("connected to directory database", "database", cfg.Database)
	}

	d := newDirectory(&mongoSource{db: client.Database(cfg.Database)}, cfg.CacheSize, timeout)
	d.client = client
	return d, nil
}

// Close releases the database connection.
func (d *Directory) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	return d.client.Disconnect(ctx)
}

// Sensor implements recordSource
func (m *mongoSource) Sensor(ctx context.Context, id string) (*SensorRecord, error) {
	var doc struct {
		ID     string `bson:"_id"`
		Name   string `bson:"name"`
		HiveID string `bson:"hiveId"`
	}
	err := m.db.Collection("sensors").FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &SensorRecord{ID: doc.ID, Name: doc.Name, HiveID: doc.HiveID}, nil
}

// Hive implements recordSource
func (m *mongoSource) Hive(ctx context.Context, id string) (*HiveRecord, error) {
	var doc struct {
		ID     string `bson:"_id"`
		Name   string `bson:"name"`
		FarmID string `bson:"farmId"`
	}
	err := m.db.Collection("hives").FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &HiveRecord{ID: doc.ID, Name: doc.Name, FarmID: doc.FarmID}, nil
}

// Farm implements recordSource
func (m *mongoSource) Farm(ctx context.Context, id string) (*FarmRecord, error) {
	var doc struct {
		ID   string `bson:"_id"`
		Name string `bson:"name"`
	}
	err := m.db.Collection("farms").FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &FarmRecord{ID: doc.ID, Name: doc.Name}, nil
}
