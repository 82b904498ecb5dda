package model

type Kind string

const (
	KindCFP     Kind = "CFP"
	KindPropose Kind = "PROPOSE"
	KindRefuse  Kind = "REFUSE"
	KindFailure Kind = "FAILURE"
	KindAccept  Kind = "ACCEPT"
	KindReject  Kind = "REJECT"
	KindInform  Kind = "INFORM"
)

// Message is the only thing participants exchange. Body carries one of
// the typed payloads below, or nil for kinds without content.
type Message struct {
	Kind           Kind          `json:"kind"`
	From           ParticipantID `json:"from"`
	To             ParticipantID `json:"to"`
	ReplyTo        ParticipantID `json:"reply_to,omitempty"`
	ConversationID string        `json:"conversation_id"`
	Round          int           `json:"round,omitempty"`
	Body           any           `json:"body,omitempty"`
}

// Reply addresses a response to the sender, or to ReplyTo when set.
func (m Message) Reply(kind Kind, body any) Message {
	to := m.From
	if m.ReplyTo != "" {
		to = m.ReplyTo
	}
	return Message{
		Kind:           kind,
		From:           m.To,
		To:             to,
		ConversationID: m.ConversationID,
		Round:          m.Round,
		Body:           body,
	}
}

type CallForProposals struct {
	JobTitle string `json:"job_title"`
	Price    int    `json:"price"`
}

type Bid struct {
	Price int `json:"price"`
}

type Award struct {
	JobTitle string `json:"job_title"`
	Price    int    `json:"price"`
}

type DelegationProposal struct {
	JobTitle    string            `json:"job_title"`
	Variant     DelegationVariant `json:"variant"`
	DefaultCost int               `json:"default_cost"`
	Initiator   ParticipantID     `json:"initiator"`
}
