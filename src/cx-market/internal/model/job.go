package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Job struct {
	Title        string `json:"title"`
	CurrentPrice int    `json:"current_price"`
	InitialPrice int    `json:"initial_price"`
}

func NewJob(title string, price int) Job {
	return Job{Title: title, CurrentPrice: price, InitialPrice: price}
}

type Proposal struct {
	BidderID ParticipantID `json:"bidder_id"`
	Price    int           `json:"price"`
	Round    int           `json:"round"`
}

// Less orders proposals by price, then by bidder id so equal prices
// resolve the same way regardless of arrival order.
func (p Proposal) Less(o Proposal) bool {
	if p.Price != o.Price {
		return p.Price < o.Price
	}
	return p.BidderID < o.BidderID
}

type RoundRecord struct {
	Round     int `json:"round"`
	BestPrice int `json:"best_price"`
	Proposals int `json:"proposals"`
}

// AuctionState is owned by the buyer for one auction. BestPrice never
// increases and Active never grows after the first broadcast.
type AuctionState struct {
	Round     int
	Active    map[ParticipantID]struct{}
	BestPrice int
	History   []RoundRecord
}

func NewAuctionState(startPrice int, bidders []ParticipantID) *AuctionState {
	active := make(map[ParticipantID]struct{}, len(bidders))
	for _, id := range bidders {
		active[id] = struct{}{}
	}
	return &AuctionState{Round: 1, Active: active, BestPrice: startPrice}
}

func (s *AuctionState) Drop(id ParticipantID) bool {
	if _, ok := s.Active[id]; !ok {
		return false
	}
	delete(s.Active, id)
	return true
}

// Lower records a round result; prices above the current best are ignored.
func (s *AuctionState) Lower(price, proposals int) {
	if price < s.BestPrice {
		s.BestPrice = price
	}
	s.History = append(s.History, RoundRecord{Round: s.Round, BestPrice: s.BestPrice, Proposals: proposals})
}

// BidderState persists across the rounds of one auction for one bidder.
type BidderState struct {
	InitialPaymentSeen int
	Seen               bool
	Tolerance          decimal.Decimal
	LastQuoted         int
}

// DefaultTolerancePercent is the share of the first observed price a
// bidder is willing to go down to.
const DefaultTolerancePercent = 50

func NewBidderState(tolerancePercent int) *BidderState {
	if tolerancePercent < 0 || tolerancePercent > 100 {
		tolerancePercent = DefaultTolerancePercent
	}
	return &BidderState{Tolerance: decimal.New(int64(tolerancePercent), -2)}
}

type DelegationVariant string

const (
	SplitA DelegationVariant = "2 for 2"
	SplitB DelegationVariant = "3 for 1"
)

// DefaultDelegationCost is the cost of the default split A1(a, d, c), A2(b, d).
const DefaultDelegationCost = 5

type DelegationDeal struct {
	JobTitle     string            `json:"job_title"`
	DefaultCost  int               `json:"default_cost"`
	Variant      DelegationVariant `json:"variant"`
	AdjustedCost int               `json:"adjusted_cost"`
	Initiator    ParticipantID     `json:"initiator"`
	Receiver     ParticipantID     `json:"receiver"`
}

// Assignment describes which subordinate takes which units after the
// adjustment. Names are the local part after the winner prefix.
func (d DelegationDeal) Assignment() string {
	initiator, receiver := LocalName(d.Initiator), LocalName(d.Receiver)
	if d.Variant == SplitA {
		return fmt.Sprintf("%s(a, c), %s(b, d)", initiator, receiver)
	}
	return fmt.Sprintf("%s(a, d, c), %s(b)", receiver, initiator)
}

// LocalName strips the "<owner>:" prefix of a scoped participant id.
func LocalName(id ParticipantID) string {
	s := string(id)
	return s[strings.LastIndex(s, ":")+1:]
}
