package model

import "time"

type Mode string

const (
	ModeIterative Mode = "iterative"
	ModeSealed    Mode = "sealed"
)

type SettlementRule string

const (
	// FirstPrice settles at the winner's own bid.
	FirstPrice SettlementRule = "first-price"
	// SecondPrice settles at the second-lowest bid (Vickrey).
	SecondPrice SettlementRule = "second-price"
)

type AuctionStatus string

const (
	AuctionStatusRunning  AuctionStatus = "RUNNING"
	AuctionStatusDone     AuctionStatus = "DONE"
	AuctionStatusRejected AuctionStatus = "REJECTED"
	AuctionStatusAborted  AuctionStatus = "ABORTED"
	AuctionStatusInvalid  AuctionStatus = "INVALID"
)

type Outcome struct {
	AuctionID    string          `json:"auction_id"`
	Mode         Mode            `json:"mode"`
	Job          Job             `json:"job"`
	Status       AuctionStatus   `json:"status"`
	Reason       string          `json:"reason,omitempty"`
	Winner       ParticipantID   `json:"winner,omitempty"`
	WinningBid   int             `json:"winning_bid,omitempty"`
	SettledPrice int             `json:"settled_price,omitempty"`
	Rounds       int             `json:"rounds"`
	History      []RoundRecord   `json:"history,omitempty"`
	Delegation   *DelegationDeal `json:"delegation,omitempty"`
	Terminated   []ParticipantID `json:"terminated,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// Closed reports whether the auction reached a terminal status.
func (o Outcome) Closed() bool {
	return o.Status != "" && o.Status != AuctionStatusRunning
}

type BidderSpec struct {
	Name      string `json:"name"`
	Tolerance *int   `json:"tolerance,omitempty"`
}

type AuctionRequest struct {
	JobTitle   string         `json:"job_title"`
	Price      int            `json:"price"`
	Mode       Mode           `json:"mode,omitempty"`
	Settlement SettlementRule `json:"settlement,omitempty"`
	Bidders    []BidderSpec   `json:"bidders"`
}

type AuctionResponse struct {
	AuctionID string        `json:"auction_id"`
	Status    AuctionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
}
