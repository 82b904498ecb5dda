package store

import (
	"context"
	"errors"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
)

var ErrNotFound = errors.New("directory entry not found")

// DirectoryStore holds live registrations, partitioned by auction scope.
// Entries are removed when a participant terminates.
type DirectoryStore interface {
	Put(ctx context.Context, e model.DirectoryEntry) error
	Delete(ctx context.Context, scope string, id model.ParticipantID) error
	ListByRole(ctx context.Context, scope string, role model.Role) ([]model.DirectoryEntry, error)
	List(ctx context.Context, scope string) ([]model.DirectoryEntry, error)
	Close() error
}
