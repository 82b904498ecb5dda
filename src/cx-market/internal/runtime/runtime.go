package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
)

var (
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrAlreadySpawned     = errors.New("participant already spawned")
)

const defaultMailboxSize = 64

// Participant is one goroutine-backed actor. Run returns when ctx is
// cancelled or the participant decides it is finished.
type Participant interface {
	Run(ctx context.Context, inbox <-chan model.Message) error
}

// Sender delivers a message to another participant's mailbox.
type Sender interface {
	Send(ctx context.Context, msg model.Message) error
}

type mailbox struct {
	ch     chan model.Message
	cancel context.CancelFunc
	done   chan struct{}
}

// Runtime owns the mailboxes of one auction scope.
type Runtime struct {
	mu          sync.Mutex
	mailboxes   map[model.ParticipantID]*mailbox
	wg          sync.WaitGroup
	mailboxSize int
}

func New() *Runtime {
	return &Runtime{
		mailboxes:   make(map[model.ParticipantID]*mailbox),
		mailboxSize: defaultMailboxSize,
	}
}

// Spawn starts p under id. The participant's context is derived from ctx
// and cancelled by Stop.
func (r *Runtime) Spawn(ctx context.Context, id model.ParticipantID, p Participant) error {
	r.mu.Lock()
	if _, ok := r.mailboxes[id]; ok {
		r.mu.Unlock()
		return ErrAlreadySpawned
	}
	pctx, cancel := context.WithCancel(ctx)
	mb := &mailbox{
		ch:     make(chan model.Message, r.mailboxSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.mailboxes[id] = mb
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer close(mb.done)
		defer r.release(id, mb)

		if err := p.Run(pctx, mb.ch); err != nil && !errors.Is(err, context.Canceled) {
			slog.WarnContext(pctx, "participant_failed", "participant", id, "error", err)
		}
	}()
	return nil
}

func (r *Runtime) release(id model.ParticipantID, mb *mailbox) {
	mb.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.mailboxes[id]; ok && cur == mb {
		delete(r.mailboxes, id)
	}
}

// Send enqueues msg for msg.To. It blocks while the mailbox is full.
func (r *Runtime) Send(ctx context.Context, msg model.Message) error {
	r.mu.Lock()
	mb, ok := r.mailboxes[msg.To]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownParticipant
	}

	select {
	case mb.ch <- msg:
		return nil
	case <-mb.done:
		return ErrUnknownParticipant
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the participant. It does not wait for the goroutine, so a
// participant may stop itself; use Wait to join. It reports whether a
// running participant was found.
func (r *Runtime) Stop(id model.ParticipantID) bool {
	r.mu.Lock()
	mb, ok := r.mailboxes[id]
	if ok {
		delete(r.mailboxes, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	mb.cancel()
	return true
}

// Alive reports whether id still has a running goroutine.
func (r *Runtime) Alive(id model.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.mailboxes[id]
	return ok
}

func (r *Runtime) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mailboxes)
}

// Wait blocks until every spawned participant has returned.
func (r *Runtime) Wait() {
	r.wg.Wait()
}
