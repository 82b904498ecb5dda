package events

import "time"

// Envelope wraps every published event.
type Envelope struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	SchemaVersion  string         `json:"schema_version"`
	IdempotencyKey string         `json:"idempotency_key"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         string         `json:"source"`
	AuctionID      string         `json:"auction_id,omitempty"`
	Data           map[string]any `json:"data"`
}

type AuctionOpenedData struct {
	AuctionID string `json:"auction_id"`
	Mode      string `json:"mode"`
	JobTitle  string `json:"job_title"`
	Price     int    `json:"price"`
	Bidders   int    `json:"bidders"`
}

type RoundClosedData struct {
	AuctionID string `json:"auction_id"`
	Round     int    `json:"round"`
	Proposals int    `json:"proposals"`
	BestPrice int    `json:"best_price"`
}

type AuctionAwardedData struct {
	AuctionID    string `json:"auction_id"`
	Winner       string `json:"winner"`
	WinningBid   int    `json:"winning_bid"`
	SettledPrice int    `json:"settled_price"`
	Rounds       int    `json:"rounds"`
}

type AuctionClosedData struct {
	AuctionID string `json:"auction_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type DelegationCompletedData struct {
	Owner        string `json:"owner"`
	Variant      string `json:"variant"`
	DefaultCost  int    `json:"default_cost"`
	AdjustedCost int    `json:"adjusted_cost"`
	Assignment   string `json:"assignment"`
}

const (
	EventAuctionOpened       = "auction.opened"
	EventRoundClosed         = "auction.round_closed"
	EventBidProposed         = "bid.proposed"
	EventAuctionAwarded      = "auction.awarded"
	EventAuctionRejected     = "auction.rejected"
	EventAuctionAborted      = "auction.aborted"
	EventDelegationCompleted = "delegation.completed"
	EventParticipantsStopped = "participants.terminated"
)
