// Package strategy computes how a bidder answers an asking price.
package strategy

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/shopspring/decimal"
)

// Source is the randomness a strategy draws from. IntN returns a value in
// [0, n). *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

// NewSource returns a deterministic source for seed. Each bidder owns its
// own source; it is not safe for concurrent use.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type DecisionKind string

const (
	Propose    DecisionKind = "propose"
	Refuse     DecisionKind = "refuse"
	AcceptLast DecisionKind = "accept_last"
)

type Decision struct {
	Kind  DecisionKind
	Price int
}

// PerturbationBound is the largest step a bidder may cut from p, chosen by
// the number of decimal digits in p.
func PerturbationBound(p int) int {
	if p < 0 {
		p = -p
	}
	switch len(strconv.Itoa(p)) {
	case 1:
		return 1
	case 2:
		return 5
	case 3:
		return 50
	default:
		return 300
	}
}

// Floor is the lowest price the bidder will quote: the first price it saw
// times its tolerance, truncated.
func Floor(state *model.BidderState) int {
	seen := decimal.NewFromInt(int64(state.InitialPaymentSeen))
	return int(seen.Mul(state.Tolerance).IntPart())
}

// observe records the first asking price exactly once. A missing price
// (p <= 0) is not an observation.
func observe(state *model.BidderState, p int) {
	if !state.Seen && p > 0 {
		state.InitialPaymentSeen = p
		state.Seen = true
	}
}

func step(src Source, p int) int {
	return 1 + src.IntN(PerturbationBound(p))
}

// Counter is the iterative bidder strategy.
type Counter struct {
	Source   Source
	Sleep    SleepFunc
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Respond answers asking price p. soleSurvivor is consulted only when the
// bidder cannot undercut any further.
func (c *Counter) Respond(ctx context.Context, state *model.BidderState, p int, soleSurvivor func() bool) Decision {
	observe(state, p)

	s := step(c.Source, p)
	if s != 1 && p-s > Floor(state) {
		state.LastQuoted = p - s
		return Decision{Kind: Propose, Price: p - s}
	}

	if soleSurvivor != nil && soleSurvivor() {
		price := state.LastQuoted
		if price == 0 {
			price = p
		}
		return Decision{Kind: AcceptLast, Price: price}
	}

	sleep := c.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	_ = sleep(ctx, c.thinkTime())
	return Decision{Kind: Refuse}
}

func (c *Counter) thinkTime() time.Duration {
	if c.MaxDelay <= c.MinDelay {
		return c.MinDelay
	}
	span := int((c.MaxDelay - c.MinDelay) / time.Millisecond)
	return c.MinDelay + time.Duration(c.Source.IntN(span+1))*time.Millisecond
}

// SealedBid is the one-shot strategy used in sealed-bid auctions.
type SealedBid struct {
	Source Source
}

func (s *SealedBid) Respond(state *model.BidderState, p int) Decision {
	observe(state, p)

	d := step(s.Source, p)
	if d != 1 && p-d > Floor(state) {
		state.LastQuoted = p - d
		return Decision{Kind: Propose, Price: p - d}
	}
	return Decision{Kind: Refuse}
}
