package auction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/runtime"
)

// Sealed runs a single round: every bidder answers once and the lowest
// proposal wins.
type Sealed struct {
	*coordinator
}

func NewSealed(id model.ParticipantID, job model.Job, dir Directory, sender runtime.Sender, opts Options) *Sealed {
	return &Sealed{coordinator: newCoordinator(id, model.ModeSealed, job, dir, sender, opts)}
}

// SettledPrice applies rule to proposals sorted cheapest first.
func SettledPrice(rule model.SettlementRule, proposals []model.Proposal) int {
	if len(proposals) == 0 {
		return 0
	}
	if rule == model.SecondPrice && len(proposals) > 1 {
		return proposals[1].Price
	}
	return proposals[0].Price
}

func (a *Sealed) Run(ctx context.Context, inbox <-chan model.Message) error {
	bidders, err := a.open(ctx)
	if err != nil || bidders == nil {
		return err
	}

	const round = 1
	a.broadcast(ctx, round, a.job.InitialPrice, bidders)

	proposals, err := a.collect(ctx, inbox, round, bidders, func(id model.ParticipantID) {
		a.removeBidder(ctx, id)
	})
	if err != nil {
		a.close(ctx, model.AuctionStatusAborted, fmt.Errorf("collect: %w", err))
		return nil
	}

	best := a.job.InitialPrice
	if len(proposals) > 0 {
		best = proposals[0].Price
	}
	a.update(func(o *model.Outcome) {
		o.History = []model.RoundRecord{{Round: round, BestPrice: best, Proposals: len(proposals)}}
	})

	if len(proposals) == 0 {
		slog.InfoContext(ctx, "auction_no_proposals", "auction_id", a.opts.AuctionID)
		a.close(ctx, model.AuctionStatusAborted, ErrNoProposals)
		return nil
	}

	winner := proposals[0]
	for _, p := range proposals[1:] {
		a.send(ctx, model.Message{
			Kind:           model.KindReject,
			From:           a.id,
			To:             p.BidderID,
			ConversationID: a.opts.AuctionID,
			Round:          round,
		})
	}

	a.award(ctx, inbox, round, winner, SettledPrice(a.opts.Settlement, proposals))
	return nil
}
