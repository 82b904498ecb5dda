package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type FirestoreDirectoryStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreDirectoryStore(ctx context.Context, projectID, collection string) (*FirestoreDirectoryStore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreDirectoryStore{
		client:     client,
		collection: collection,
	}, nil
}

func docID(scope string, id model.ParticipantID) string {
	return scope + "_" + string(id)
}

func (s *FirestoreDirectoryStore) Put(ctx context.Context, e model.DirectoryEntry) error {
	_, err := s.client.Collection(s.collection).Doc(docID(e.Scope, e.ParticipantID)).Set(ctx, e)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

func (s *FirestoreDirectoryStore) Delete(ctx context.Context, scope string, id model.ParticipantID) error {
	ref := s.client.Collection(s.collection).Doc(docID(scope, id))
	_, err := ref.Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (s *FirestoreDirectoryStore) ListByRole(ctx context.Context, scope string, role model.Role) ([]model.DirectoryEntry, error) {
	query := s.client.Collection(s.collection).
		Where("scope", "==", scope).
		Where("role", "==", string(role))
	return s.collect(ctx, query)
}

func (s *FirestoreDirectoryStore) List(ctx context.Context, scope string) ([]model.DirectoryEntry, error) {
	query := s.client.Collection(s.collection).Where("scope", "==", scope)
	return s.collect(ctx, query)
}

func (s *FirestoreDirectoryStore) collect(ctx context.Context, query firestore.Query) ([]model.DirectoryEntry, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []model.DirectoryEntry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate entries: %w", err)
		}
		var e model.DirectoryEntry
		if err := doc.DataTo(&e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (s *FirestoreDirectoryStore) Close() error {
	return s.client.Close()
}
