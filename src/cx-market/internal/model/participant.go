package model

import "time"

// ParticipantID identifies one live participant inside an auction scope.
type ParticipantID string

type Role string

const (
	RoleBuyer         Role = "Buyer"
	RoleBidder        Role = "Bidder"
	RoleSubNegotiator Role = "SubNegotiator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleBidder, RoleSubNegotiator:
		return true
	}
	return false
}

// DirectoryEntry is the stored shape of a live registration.
type DirectoryEntry struct {
	Scope         string        `json:"scope" bson:"scope" firestore:"scope"`
	ParticipantID ParticipantID `json:"participant_id" bson:"participant_id" firestore:"participant_id"`
	Role          Role          `json:"role" bson:"role" firestore:"role"`
	RegisteredAt  time.Time     `json:"registered_at" bson:"registered_at" firestore:"registered_at"`
}
