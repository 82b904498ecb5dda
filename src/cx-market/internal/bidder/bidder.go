// Package bidder implements the carrier side of both auction kinds.
package bidder

import (
	"context"
	"log/slog"
	"time"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/runtime"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/strategy"
)

// Counter exposes the registry's view of how many bidders are still in.
type Counter interface {
	ActiveBidderCount() int
}

// Delegator hands a won job to subordinates. The resulting deal arrives
// later as an INFORM in the bidder's own mailbox.
type Delegator interface {
	Start(ctx context.Context, owner model.ParticipantID, jobTitle string) (model.DelegationVariant, error)
}

type Config struct {
	ID             model.ParticipantID
	Mode           model.Mode
	Tolerance      int
	Source         strategy.Source
	Sleep          strategy.SleepFunc
	MinDelay       time.Duration
	MaxDelay       time.Duration
	DelegationWait time.Duration
}

type Bidder struct {
	id             model.ParticipantID
	mode           model.Mode
	state          *model.BidderState
	counter        *strategy.Counter
	sealed         *strategy.SealedBid
	active         Counter
	sender         runtime.Sender
	delegator      Delegator
	delegationWait time.Duration
}

func New(cfg Config, active Counter, sender runtime.Sender, delegator Delegator) *Bidder {
	mode := cfg.Mode
	if mode == "" {
		mode = model.ModeIterative
	}
	return &Bidder{
		id:    cfg.ID,
		mode:  mode,
		state: model.NewBidderState(cfg.Tolerance),
		counter: &strategy.Counter{
			Source:   cfg.Source,
			Sleep:    cfg.Sleep,
			MinDelay: cfg.MinDelay,
			MaxDelay: cfg.MaxDelay,
		},
		sealed:         &strategy.SealedBid{Source: cfg.Source},
		active:         active,
		sender:         sender,
		delegator:      delegator,
		delegationWait: cfg.DelegationWait,
	}
}

func (b *Bidder) ID() model.ParticipantID {
	return b.id
}

func (b *Bidder) Run(ctx context.Context, inbox <-chan model.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-inbox:
			b.handle(ctx, msg, inbox)
		}
	}
}

func (b *Bidder) handle(ctx context.Context, msg model.Message, inbox <-chan model.Message) {
	switch msg.Kind {
	case model.KindCFP:
		b.respond(ctx, msg)
	case model.KindAccept:
		b.won(ctx, msg, inbox)
	case model.KindReject:
		slog.InfoContext(ctx, "bid_rejected", "bidder", b.id, "round", msg.Round)
	default:
		slog.DebugContext(ctx, "message_ignored", "bidder", b.id, "kind", msg.Kind, "from", msg.From)
	}
}

func (b *Bidder) respond(ctx context.Context, msg model.Message) {
	price := 0
	call, ok := msg.Body.(model.CallForProposals)
	if ok {
		price = call.Price
	} else {
		slog.WarnContext(ctx, "call_unreadable", "bidder", b.id, "from", msg.From)
	}

	var d strategy.Decision
	if b.mode == model.ModeSealed {
		d = b.sealed.Respond(b.state, price)
	} else {
		d = b.counter.Respond(ctx, b.state, price, b.soleSurvivor)
	}

	var reply model.Message
	switch d.Kind {
	case strategy.Propose, strategy.AcceptLast:
		reply = msg.Reply(model.KindPropose, model.Bid{Price: d.Price})
		slog.InfoContext(ctx, "bid_proposed",
			"bidder", b.id,
			"round", msg.Round,
			"asking", price,
			"price", d.Price,
			"decision", d.Kind,
		)
	default:
		reply = msg.Reply(model.KindRefuse, nil)
		slog.InfoContext(ctx, "bid_refused", "bidder", b.id, "round", msg.Round, "asking", price, "floor", strategy.Floor(b.state))
	}
	b.send(ctx, reply)
}

func (b *Bidder) soleSurvivor() bool {
	return b.active != nil && b.active.ActiveBidderCount() == 1
}

func (b *Bidder) won(ctx context.Context, msg model.Message, inbox <-chan model.Message) {
	award, ok := msg.Body.(model.Award)
	if !ok {
		slog.WarnContext(ctx, "award_unreadable", "bidder", b.id, "from", msg.From)
		b.send(ctx, msg.Reply(model.KindFailure, nil))
		return
	}
	slog.InfoContext(ctx, "job_won", "bidder", b.id, "job_title", award.JobTitle, "price", award.Price)

	var deal *model.DelegationDeal
	if b.mode == model.ModeIterative && b.delegator != nil {
		deal = b.delegate(ctx, award.JobTitle, inbox)
	}
	if deal != nil {
		b.send(ctx, msg.Reply(model.KindInform, deal))
		return
	}
	b.send(ctx, msg.Reply(model.KindInform, nil))
}

// delegate starts the subordinate negotiation and waits for its result.
// A missed result is not an error for the buyer.
func (b *Bidder) delegate(ctx context.Context, jobTitle string, inbox <-chan model.Message) *model.DelegationDeal {
	if _, err := b.delegator.Start(ctx, b.id, jobTitle); err != nil {
		slog.WarnContext(ctx, "delegation_failed", "bidder", b.id, "error", err)
		return nil
	}

	timer := time.NewTimer(b.delegationWait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			slog.InfoContext(ctx, "delegation_wait_elapsed", "bidder", b.id, "wait", b.delegationWait)
			return nil
		case m := <-inbox:
			if deal, ok := m.Body.(*model.DelegationDeal); ok && m.Kind == model.KindInform {
				return deal
			}
			slog.DebugContext(ctx, "message_ignored", "bidder", b.id, "kind", m.Kind, "from", m.From)
		}
	}
}

func (b *Bidder) send(ctx context.Context, msg model.Message) {
	if err := b.sender.Send(ctx, msg); err != nil {
		slog.WarnContext(ctx, "send_failed", "bidder", b.id, "to", msg.To, "kind", msg.Kind, "error", err)
	}
}
