package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/store"
)

var (
	ErrNotRegistered = errors.New("participant not registered")
	ErrDuplicate     = errors.New("participant already registered")
	ErrInvalidRole   = errors.New("invalid role")
)

// Terminator stops the goroutine behind a participant.
type Terminator interface {
	Stop(id model.ParticipantID) bool
}

// Registry is the role directory and active-bidder counter of one auction
// scope. All state transitions happen under a single mutex; directory
// writes go to the backing store afterwards.
type Registry struct {
	scope string
	store store.DirectoryStore
	term  Terminator

	mu         sync.Mutex
	registered map[model.ParticipantID]model.Role
	active     map[model.ParticipantID]struct{}
}

func New(scope string, st store.DirectoryStore, term Terminator) *Registry {
	return &Registry{
		scope:      scope,
		store:      st,
		term:       term,
		registered: make(map[model.ParticipantID]model.Role),
		active:     make(map[model.ParticipantID]struct{}),
	}
}

func (r *Registry) Scope() string {
	return r.scope
}

// Register lists id under role. Bidders also join the active set.
func (r *Registry) Register(ctx context.Context, id model.ParticipantID, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	r.mu.Lock()
	if _, ok := r.registered[id]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	r.registered[id] = role
	if role == model.RoleBidder {
		r.active[id] = struct{}{}
	}
	r.mu.Unlock()

	entry := model.DirectoryEntry{
		Scope:         r.scope,
		ParticipantID: id,
		Role:          role,
		RegisteredAt:  time.Now().UTC(),
	}
	if err := r.store.Put(ctx, entry); err != nil {
		r.mu.Lock()
		delete(r.registered, id)
		delete(r.active, id)
		r.mu.Unlock()
		return fmt.Errorf("register %s: %w", id, err)
	}
	slog.DebugContext(ctx, "participant_registered", "scope", r.scope, "participant", id, "role", role)
	return nil
}

// FindByRole returns the listed participants holding role, sorted by id.
// It has no side effects.
func (r *Registry) FindByRole(ctx context.Context, role model.Role) ([]model.ParticipantID, error) {
	entries, err := r.store.ListByRole(ctx, r.scope, role)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", role, err)
	}
	ids := make([]model.ParticipantID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ParticipantID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Remove takes id out of the directory listing and the active-bidder set.
// The participant stays alive until Terminate. Removing twice is a no-op.
func (r *Registry) Remove(ctx context.Context, id model.ParticipantID) error {
	r.mu.Lock()
	if _, ok := r.registered[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	_, wasActive := r.active[id]
	delete(r.active, id)
	r.mu.Unlock()

	if !wasActive {
		return nil
	}
	if err := r.store.Delete(ctx, r.scope, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	slog.InfoContext(ctx, "bidder_removed", "scope", r.scope, "participant", id, "active_bidders", r.ActiveBidderCount())
	return nil
}

// Terminate deregisters id and stops its goroutine. It succeeds exactly
// once per registration.
func (r *Registry) Terminate(ctx context.Context, id model.ParticipantID) error {
	r.mu.Lock()
	if _, ok := r.registered[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	delete(r.registered, id)
	delete(r.active, id)
	r.mu.Unlock()

	var storeErr error
	if err := r.store.Delete(ctx, r.scope, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		storeErr = fmt.Errorf("terminate %s: %w", id, err)
	}
	if r.term != nil {
		r.term.Stop(id)
	}
	slog.InfoContext(ctx, "participant_terminated", "scope", r.scope, "participant", id)
	return storeErr
}

// TerminateAll tears down every registered participant of the scope and
// returns the ids it terminated, sorted.
func (r *Registry) TerminateAll(ctx context.Context) []model.ParticipantID {
	r.mu.Lock()
	ids := make([]model.ParticipantID, 0, len(r.registered))
	for id := range r.registered {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	done := make([]model.ParticipantID, 0, len(ids))
	for _, id := range ids {
		err := r.Terminate(ctx, id)
		if errors.Is(err, ErrNotRegistered) {
			continue
		}
		if err != nil {
			slog.WarnContext(ctx, "terminate_failed", "scope", r.scope, "participant", id, "error", err)
		}
		done = append(done, id)
	}
	return done
}

func (r *Registry) ActiveBidderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Registry) Registered(id model.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.registered[id]
	return ok
}
