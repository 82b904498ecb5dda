package store

import (
	"context"
	"time"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDirectoryStore lets several market processes share one directory.
type MongoDirectoryStore struct {
	coll *mongo.Collection
}

func NewMongoDirectoryStore(client *mongo.Client, dbName, collName string) *MongoDirectoryStore {
	return &MongoDirectoryStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

func (s *MongoDirectoryStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "scope", Value: 1}, {Key: "participant_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "scope", Value: 1}, {Key: "role", Value: 1}},
		},
	}
	_, err := s.coll.Indexes().CreateMany(ctx, indexes)
	return err
}

func (s *MongoDirectoryStore) Put(ctx context.Context, e model.DirectoryEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	filter := bson.M{"scope": e.Scope, "participant_id": e.ParticipantID}
	_, err := s.coll.ReplaceOne(ctx, filter, e, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoDirectoryStore) Delete(ctx context.Context, scope string, id model.ParticipantID) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := s.coll.DeleteOne(ctx, bson.M{"scope": scope, "participant_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoDirectoryStore) ListByRole(ctx context.Context, scope string, role model.Role) ([]model.DirectoryEntry, error) {
	return s.find(ctx, bson.M{"scope": scope, "role": role})
}

func (s *MongoDirectoryStore) List(ctx context.Context, scope string) ([]model.DirectoryEntry, error) {
	return s.find(ctx, bson.M{"scope": scope})
}

func (s *MongoDirectoryStore) find(ctx context.Context, filter bson.M) ([]model.DirectoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "participant_id", Value: 1}})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.DirectoryEntry
	for cur.Next(ctx) {
		var e model.DirectoryEntry
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close is a no-op; the client is owned and disconnected by main.
func (s *MongoDirectoryStore) Close() error {
	return nil
}
