// Package delegation splits a won job between two subordinate negotiators
// of the winning bidder.
package delegation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/runtime"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/strategy"
	"github.com/parlakisik/carrier-exchange/src/internal/events"
)

// Host spawns participants and carries their messages.
type Host interface {
	runtime.Sender
	Spawn(ctx context.Context, id model.ParticipantID, p runtime.Participant) error
}

type Registrar interface {
	Register(ctx context.Context, id model.ParticipantID, role model.Role) error
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// Negotiator starts the delegation on behalf of one winning bidder.
type Negotiator struct {
	host      Host
	registrar Registrar
	source    strategy.Source
	publisher EventPublisher
}

func NewNegotiator(host Host, registrar Registrar, source strategy.Source, publisher EventPublisher) *Negotiator {
	return &Negotiator{
		host:      host,
		registrar: registrar,
		source:    source,
		publisher: publisher,
	}
}

// SubordinateIDs returns the ids of the two subordinates of owner.
func SubordinateIDs(owner model.ParticipantID) (a1, a2 model.ParticipantID) {
	return owner + ":A1", owner + ":A2"
}

// PickVariant chooses one of the two splits with equal probability.
func PickVariant(src strategy.Source) model.DelegationVariant {
	if src.IntN(2) == 0 {
		return model.SplitA
	}
	return model.SplitB
}

// Start spawns the subordinates of owner and sends the opening proposal to
// the receiving side. The initiator reports the deal back to owner with an
// INFORM carrying a *model.DelegationDeal.
func (n *Negotiator) Start(ctx context.Context, owner model.ParticipantID, jobTitle string) (model.DelegationVariant, error) {
	a1, a2 := SubordinateIDs(owner)
	variant := PickVariant(n.source)

	initiator, receiver := a1, a2
	if variant == model.SplitB {
		initiator, receiver = a2, a1
	}

	for _, id := range []model.ParticipantID{a1, a2} {
		sub := &Subordinate{id: id, owner: owner, host: n.host, publisher: n.publisher}
		if err := n.host.Spawn(ctx, id, sub); err != nil {
			return "", fmt.Errorf("spawn %s: %w", id, err)
		}
		if err := n.registrar.Register(ctx, id, model.RoleSubNegotiator); err != nil {
			return "", fmt.Errorf("register %s: %w", id, err)
		}
	}

	slog.InfoContext(ctx, "delegation_started",
		"owner", owner,
		"variant", variant,
		"initiator", initiator,
		"receiver", receiver,
		"default_cost", model.DefaultDelegationCost,
	)

	msg := model.Message{
		Kind:           model.KindCFP,
		From:           owner,
		To:             receiver,
		ReplyTo:        initiator,
		ConversationID: "delegation_" + uuid.NewString(),
		Body: model.DelegationProposal{
			JobTitle:    jobTitle,
			Variant:     variant,
			DefaultCost: model.DefaultDelegationCost,
			Initiator:   initiator,
		},
	}
	if err := n.host.Send(ctx, msg); err != nil {
		return "", fmt.Errorf("send delegation proposal: %w", err)
	}
	return variant, nil
}

// Subordinate is one half of the delegation pair. As receiver it accepts
// the proposal; as initiator it settles the adjusted deal and reports it to
// its owner.
type Subordinate struct {
	id        model.ParticipantID
	owner     model.ParticipantID
	host      runtime.Sender
	publisher EventPublisher
}

func (s *Subordinate) Run(ctx context.Context, inbox <-chan model.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-inbox:
			if err := s.handle(ctx, msg); err != nil {
				slog.WarnContext(ctx, "delegation_message_failed", "participant", s.id, "kind", msg.Kind, "error", err)
			}
		}
	}
}

func (s *Subordinate) handle(ctx context.Context, msg model.Message) error {
	proposal, ok := msg.Body.(model.DelegationProposal)
	if !ok {
		slog.WarnContext(ctx, "delegation_body_unreadable", "participant", s.id, "kind", msg.Kind)
		return nil
	}

	switch msg.Kind {
	case model.KindCFP:
		slog.InfoContext(ctx, "delegation_proposal_received", "participant", s.id, "variant", proposal.Variant)
		return s.host.Send(ctx, msg.Reply(model.KindAccept, proposal))

	case model.KindAccept:
		deal := &model.DelegationDeal{
			JobTitle:     proposal.JobTitle,
			DefaultCost:  proposal.DefaultCost,
			Variant:      proposal.Variant,
			AdjustedCost: proposal.DefaultCost - 1,
			Initiator:    s.id,
			Receiver:     msg.From,
		}
		slog.InfoContext(ctx, "delegation_agreed",
			"participant", s.id,
			"variant", deal.Variant,
			"adjusted_cost", deal.AdjustedCost,
			"assignment", deal.Assignment(),
		)
		err := s.host.Send(ctx, model.Message{
			Kind:           model.KindInform,
			From:           s.id,
			To:             s.owner,
			ConversationID: msg.ConversationID,
			Body:           deal,
		})
		if s.publisher != nil {
			_ = s.publisher.Publish(ctx, events.EventDelegationCompleted, events.DelegationCompletedData{
				Owner:        string(s.owner),
				Variant:      string(deal.Variant),
				DefaultCost:  deal.DefaultCost,
				AdjustedCost: deal.AdjustedCost,
				Assignment:   deal.Assignment(),
			})
		}
		return err
	}
	return nil
}
