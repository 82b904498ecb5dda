package integration

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DirectoryCleaner inspects and clears the directory collection when the
// market runs with STORE_TYPE=mongo.
type DirectoryCleaner struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewDirectoryCleaner(mongoURI, dbName, collection string) (*DirectoryCleaner, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &DirectoryCleaner{
		client: client,
		coll:   client.Database(dbName).Collection(collection),
	}, nil
}

func (d *DirectoryCleaner) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// CountScope returns how many registrations of one auction are still stored.
func (d *DirectoryCleaner) CountScope(ctx context.Context, scope string) (int64, error) {
	return d.coll.CountDocuments(ctx, bson.M{"scope": scope})
}

// CleanOlderThan removes registrations left behind by crashed runs.
func (d *DirectoryCleaner) CleanOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res, err := d.coll.DeleteMany(ctx, bson.M{"registered_at": bson.M{"$lt": time.Now().Add(-age)}})
	if err != nil {
		return 0, fmt.Errorf("clean directory: %w", err)
	}
	return res.DeletedCount, nil
}
