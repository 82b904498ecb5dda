package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/runtime"
	"github.com/parlakisik/carrier-exchange/src/internal/events"
)

// Iterative is the contract-net buyer: it lowers the asking price round by
// round until a single bidder is left.
type Iterative struct {
	*coordinator
}

func NewIterative(id model.ParticipantID, job model.Job, dir Directory, sender runtime.Sender, opts Options) *Iterative {
	return &Iterative{coordinator: newCoordinator(id, model.ModeIterative, job, dir, sender, opts)}
}

func (a *Iterative) Run(ctx context.Context, inbox <-chan model.Message) error {
	bidders, err := a.open(ctx)
	if err != nil || bidders == nil {
		return err
	}

	state := model.NewAuctionState(a.job.InitialPrice, bidders)
	drop := func(id model.ParticipantID) {
		if state.Drop(id) {
			a.removeBidder(ctx, id)
		}
	}

	for {
		a.broadcast(ctx, state.Round, state.BestPrice, activeIDs(state))

		proposals, err := a.collect(ctx, inbox, state.Round, activeIDs(state), drop)
		if err != nil {
			a.close(ctx, model.AuctionStatusAborted, fmt.Errorf("round %d: %w", state.Round, err))
			return nil
		}

		switch len(proposals) {
		case 0:
			state.Lower(state.BestPrice, 0)
			a.record(state)
			slog.InfoContext(ctx, "auction_no_proposals", "auction_id", a.opts.AuctionID, "round", state.Round)
			a.close(ctx, model.AuctionStatusAborted, ErrNoProposals)
			return nil

		case 1:
			last := proposals[0]
			if last.Price > state.BestPrice {
				state.Lower(last.Price, 1)
				a.record(state)
				slog.InfoContext(ctx, "final_offer_rejected", "bidder", last.BidderID, "price", last.Price, "best_price", state.BestPrice)
				a.send(ctx, model.Message{
					Kind:           model.KindReject,
					From:           a.id,
					To:             last.BidderID,
					ConversationID: a.opts.AuctionID,
					Round:          state.Round,
				})
				a.close(ctx, model.AuctionStatusRejected, fmt.Errorf("final offer %d above best price %d", last.Price, state.BestPrice))
				return nil
			}
			state.Lower(last.Price, 1)
			a.record(state)
			a.award(ctx, inbox, state.Round, last, last.Price)
			return nil

		default:
			state.Lower(proposals[0].Price, len(proposals))
			a.record(state)
			slog.InfoContext(ctx, "round_closed",
				"auction_id", a.opts.AuctionID,
				"round", state.Round,
				"proposals", len(proposals),
				"best_price", state.BestPrice,
			)
			a.publish(ctx, events.EventRoundClosed, events.RoundClosedData{
				AuctionID: a.opts.AuctionID,
				Round:     state.Round,
				Proposals: len(proposals),
				BestPrice: state.BestPrice,
			})
			state.Round++
		}
	}
}

func (a *Iterative) record(state *model.AuctionState) {
	history := append([]model.RoundRecord(nil), state.History...)
	a.update(func(o *model.Outcome) { o.History = history })
}

func activeIDs(state *model.AuctionState) []model.ParticipantID {
	ids := make([]model.ParticipantID, 0, len(state.Active))
	for id := range state.Active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
