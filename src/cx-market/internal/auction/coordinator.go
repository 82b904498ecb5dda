// Package auction runs the buyer side of the iterative and sealed-bid
// procurement protocols.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/runtime"
	"github.com/parlakisik/carrier-exchange/src/internal/events"
)

var (
	ErrInvalidJob     = errors.New("invalid job")
	ErrNoCounterparty = errors.New("no agents found")
	ErrNoProposals    = errors.New("no proposals received")
	ErrNoAck          = errors.New("winner did not acknowledge")
	ErrWinnerFailed   = errors.New("winner reported failure")
)

const (
	DefaultRoundTimeout = 10 * time.Second
	DefaultAckTimeout   = 15 * time.Second
)

// Directory is the part of the registry the buyer needs.
type Directory interface {
	FindByRole(ctx context.Context, role model.Role) ([]model.ParticipantID, error)
	Remove(ctx context.Context, id model.ParticipantID) error
	Terminate(ctx context.Context, id model.ParticipantID) error
	TerminateAll(ctx context.Context) []model.ParticipantID
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

type Options struct {
	AuctionID    string
	RoundTimeout time.Duration
	AckTimeout   time.Duration
	Settlement   model.SettlementRule
	Publisher    EventPublisher
}

func (o Options) withDefaults() Options {
	if o.RoundTimeout <= 0 {
		o.RoundTimeout = DefaultRoundTimeout
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = DefaultAckTimeout
	}
	if o.Settlement == "" {
		o.Settlement = model.FirstPrice
	}
	return o
}

// ValidateJob checks the buyer's input before any auction starts.
func ValidateJob(title string, price int) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: job title is blank", ErrInvalidJob)
	}
	if price <= 0 {
		return fmt.Errorf("%w: price must be a positive integer, got %d", ErrInvalidJob, price)
	}
	return nil
}

// coordinator holds what both protocols share: the buyer identity, the job,
// message plumbing and the outcome being built.
type coordinator struct {
	id     model.ParticipantID
	mode   model.Mode
	dir    Directory
	sender runtime.Sender
	opts   Options

	mu      sync.Mutex
	job     model.Job
	outcome model.Outcome
	done    chan struct{}
}

func newCoordinator(id model.ParticipantID, mode model.Mode, job model.Job, dir Directory, sender runtime.Sender, opts Options) *coordinator {
	opts = opts.withDefaults()
	return &coordinator{
		id:     id,
		mode:   mode,
		dir:    dir,
		sender: sender,
		opts:   opts,
		job:    job,
		outcome: model.Outcome{
			AuctionID: opts.AuctionID,
			Mode:      mode,
			Job:       job,
			Status:    model.AuctionStatusRunning,
			StartedAt: time.Now().UTC(),
		},
		done: make(chan struct{}),
	}
}

// Outcome returns a snapshot; it is final once Done is closed.
func (c *coordinator) Outcome() model.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

func (c *coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *coordinator) update(fn func(o *model.Outcome)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.outcome)
}

func (c *coordinator) publish(ctx context.Context, eventType string, data any) {
	if c.opts.Publisher == nil {
		return
	}
	if err := c.opts.Publisher.Publish(ctx, eventType, data); err != nil {
		slog.WarnContext(ctx, "event_publish_failed", "event_type", eventType, "error", err)
	}
}

// open validates the job and discovers bidders. A nil slice with a nil
// error means the auction already closed.
func (c *coordinator) open(ctx context.Context) ([]model.ParticipantID, error) {
	if err := ValidateJob(c.job.Title, c.job.InitialPrice); err != nil {
		slog.ErrorContext(ctx, "job_invalid", "buyer", c.id, "error", err)
		c.close(ctx, model.AuctionStatusInvalid, err)
		return nil, err
	}

	bidders, err := c.dir.FindByRole(ctx, model.RoleBidder)
	if err != nil {
		c.close(ctx, model.AuctionStatusAborted, fmt.Errorf("discover bidders: %w", err))
		return nil, nil
	}
	if len(bidders) == 0 {
		slog.InfoContext(ctx, "no_agents_found", "buyer", c.id, "job_title", c.job.Title)
		c.close(ctx, model.AuctionStatusAborted, ErrNoCounterparty)
		return nil, nil
	}

	slog.InfoContext(ctx, "auction_opened",
		"auction_id", c.opts.AuctionID,
		"mode", c.mode,
		"job_title", c.job.Title,
		"price", c.job.InitialPrice,
		"bidders", len(bidders),
	)
	c.publish(ctx, events.EventAuctionOpened, events.AuctionOpenedData{
		AuctionID: c.opts.AuctionID,
		Mode:      string(c.mode),
		JobTitle:  c.job.Title,
		Price:     c.job.InitialPrice,
		Bidders:   len(bidders),
	})
	return bidders, nil
}

func (c *coordinator) broadcast(ctx context.Context, round, price int, to []model.ParticipantID) {
	c.mu.Lock()
	c.job.CurrentPrice = price
	c.outcome.Job = c.job
	c.outcome.Rounds = round
	c.mu.Unlock()

	for _, id := range to {
		msg := model.Message{
			Kind:           model.KindCFP,
			From:           c.id,
			To:             id,
			ConversationID: c.opts.AuctionID,
			Round:          round,
			Body:           model.CallForProposals{JobTitle: c.job.Title, Price: price},
		}
		if err := c.sender.Send(ctx, msg); err != nil {
			slog.WarnContext(ctx, "call_not_delivered", "bidder", id, "round", round, "error", err)
		}
	}
}

// collect gathers one response from every expected bidder, or stops at the
// round timeout. Replies already queued when the timer fires still count.
// Refusals, failures and silent bidders leave the auction as soon as they
// are known. Proposals come back cheapest first.
func (c *coordinator) collect(ctx context.Context, inbox <-chan model.Message, round int, expected []model.ParticipantID, drop func(model.ParticipantID)) ([]model.Proposal, error) {
	pending := make(map[model.ParticipantID]struct{}, len(expected))
	for _, id := range expected {
		pending[id] = struct{}{}
	}

	var proposals []model.Proposal
	accept := func(msg model.Message) {
		if _, ok := pending[msg.From]; !ok || msg.Round != round || msg.ConversationID != c.opts.AuctionID {
			slog.DebugContext(ctx, "message_ignored", "buyer", c.id, "from", msg.From, "kind", msg.Kind, "round", msg.Round)
			return
		}
		delete(pending, msg.From)

		if msg.Kind != model.KindPropose {
			slog.InfoContext(ctx, "bidder_left", "bidder", msg.From, "kind", msg.Kind, "round", round)
			drop(msg.From)
			return
		}
		bid, ok := msg.Body.(model.Bid)
		if !ok {
			slog.WarnContext(ctx, "proposal_unreadable", "bidder", msg.From, "round", round)
			drop(msg.From)
			return
		}
		proposals = append(proposals, model.Proposal{BidderID: msg.From, Price: bid.Price, Round: round})
		c.publish(ctx, events.EventBidProposed, map[string]any{
			"auction_id": c.opts.AuctionID,
			"bidder":     string(msg.From),
			"round":      round,
			"price":      bid.Price,
		})
	}

	timer := time.NewTimer(c.opts.RoundTimeout)
	defer timer.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			drainQueued(inbox, accept, func() bool { return len(pending) > 0 })
			silent := make([]model.ParticipantID, 0, len(pending))
			for id := range pending {
				silent = append(silent, id)
			}
			sort.Slice(silent, func(i, j int) bool { return silent[i] < silent[j] })
			for _, id := range silent {
				slog.InfoContext(ctx, "bidder_timed_out", "bidder", id, "round", round)
				drop(id)
			}
			pending = nil

		case msg := <-inbox:
			accept(msg)
		}
	}

	sort.Slice(proposals, func(i, j int) bool { return proposals[i].Less(proposals[j]) })
	return proposals, nil
}

// drainQueued hands every message already in inbox to fn without waiting
// for new ones.
func drainQueued(inbox <-chan model.Message, fn func(model.Message), more func() bool) {
	for more() {
		select {
		case msg := <-inbox:
			fn(msg)
		default:
			return
		}
	}
}

func (c *coordinator) removeBidder(ctx context.Context, id model.ParticipantID) {
	if err := c.dir.Remove(ctx, id); err != nil {
		slog.WarnContext(ctx, "remove_failed", "bidder", id, "error", err)
	}
}

func (c *coordinator) send(ctx context.Context, msg model.Message) {
	if err := c.sender.Send(ctx, msg); err != nil {
		slog.WarnContext(ctx, "send_failed", "to", msg.To, "kind", msg.Kind, "error", err)
	}
}

// award sends the acceptance and waits for the winner's INFORM.
func (c *coordinator) award(ctx context.Context, inbox <-chan model.Message, round int, winner model.Proposal, settled int) {
	c.send(ctx, model.Message{
		Kind:           model.KindAccept,
		From:           c.id,
		To:             winner.BidderID,
		ConversationID: c.opts.AuctionID,
		Round:          round,
		Body:           model.Award{JobTitle: c.job.Title, Price: settled},
	})
	c.update(func(o *model.Outcome) {
		o.Winner = winner.BidderID
		o.WinningBid = winner.Price
		o.SettledPrice = settled
	})
	slog.InfoContext(ctx, "auction_awarded",
		"auction_id", c.opts.AuctionID,
		"winner", winner.BidderID,
		"bid", winner.Price,
		"settled_price", settled,
		"round", round,
	)
	c.publish(ctx, events.EventAuctionAwarded, events.AuctionAwardedData{
		AuctionID:    c.opts.AuctionID,
		Winner:       string(winner.BidderID),
		WinningBid:   winner.Price,
		SettledPrice: settled,
		Rounds:       round,
	})

	ack, err := c.awaitInform(ctx, inbox, winner.BidderID)
	if err != nil {
		c.close(ctx, model.AuctionStatusAborted, err)
		return
	}
	if deal, ok := ack.Body.(*model.DelegationDeal); ok {
		c.update(func(o *model.Outcome) { o.Delegation = deal })
		slog.InfoContext(ctx, "delegation_reported", "winner", winner.BidderID, "assignment", deal.Assignment(), "adjusted_cost", deal.AdjustedCost)
	}
	slog.InfoContext(ctx, "jobs_exhausted", "buyer", c.id, "job_title", c.job.Title)
	c.close(ctx, model.AuctionStatusDone, nil)
}

func (c *coordinator) awaitInform(ctx context.Context, inbox <-chan model.Message, winner model.ParticipantID) (model.Message, error) {
	timer := time.NewTimer(c.opts.AckTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return model.Message{}, ctx.Err()
		case <-timer.C:
			slog.WarnContext(ctx, "ack_timed_out", "winner", winner, "timeout", c.opts.AckTimeout)
			return model.Message{}, ErrNoAck
		case msg := <-inbox:
			if msg.From != winner {
				slog.DebugContext(ctx, "message_ignored", "buyer", c.id, "from", msg.From, "kind", msg.Kind)
				continue
			}
			switch msg.Kind {
			case model.KindInform:
				return msg, nil
			case model.KindFailure:
				return model.Message{}, ErrWinnerFailed
			}
		}
	}
}

// close tears down every participant of the scope and records the result.
func (c *coordinator) close(ctx context.Context, status model.AuctionStatus, reason error) {
	teardown := context.WithoutCancel(ctx)
	terminated := c.dir.TerminateAll(teardown)
	c.publish(teardown, events.EventParticipantsStopped, map[string]any{
		"auction_id":   c.opts.AuctionID,
		"participants": len(terminated),
	})
	c.finish(teardown, status, reason, terminated)
}

func (c *coordinator) finish(ctx context.Context, status model.AuctionStatus, reason error, terminated []model.ParticipantID) {
	now := time.Now().UTC()
	c.update(func(o *model.Outcome) {
		o.Status = status
		if reason != nil {
			o.Reason = reason.Error()
		}
		o.Terminated = terminated
		o.FinishedAt = &now
	})

	out := c.Outcome()
	slog.InfoContext(ctx, "auction_closed",
		"auction_id", out.AuctionID,
		"status", out.Status,
		"reason", out.Reason,
		"winner", out.Winner,
		"rounds", out.Rounds,
		"terminated", len(terminated),
	)

	eventType := events.EventAuctionAborted
	if status == model.AuctionStatusRejected {
		eventType = events.EventAuctionRejected
	}
	if status != model.AuctionStatusDone {
		c.publish(ctx, eventType, events.AuctionClosedData{
			AuctionID: out.AuctionID,
			Status:    string(status),
			Reason:    out.Reason,
		})
	}
	close(c.done)
}
