package types

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an inbound event.
type Kind string

const (
	KindCommand     Kind = "command"
	KindCallback    Kind = "callback"
	KindInteraction Kind = "interaction"
)

// ExpectsReply reports whether events of this kind carry an acknowledgement
// slot that the transport waits on.
func (k Kind) ExpectsReply() bool {
	return k == KindCommand
}

// InboundEvent is a single event received from the real-time transport.
type InboundEvent struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	Payload    any       `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewInboundEvent stamps a payload with a fresh ID and arrival time.
func NewInboundEvent(kind Kind, payload any) InboundEvent {
	return InboundEvent{
		ID:         uuid.New(),
		Kind:       kind,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
}

// Acknowledgement is what the ingress hands back to the transport.
type Acknowledgement struct {
	Text  string `json:"text,omitempty"`
	Reply bool   `json:"reply"`
}

// NoReply is the acknowledgement for fire-and-forget kinds.
var NoReply = Acknowledgement{}

// ReplyText builds a request/response acknowledgement.
func ReplyText(text string) Acknowledgement {
	return Acknowledgement{Text: text, Reply: true}
}

// RecordStatus represents the final state of a dispatch.
type RecordStatus string

const (
	RecordStatusReceived  RecordStatus = "received"
	RecordStatusReplied   RecordStatus = "replied"
	RecordStatusFailed    RecordStatus = "failed"
	RecordStatusUnrouted  RecordStatus = "unrouted"
	RecordStatusCompleted RecordStatus = "completed"
)

// Record summarizes one dispatched event for the recent-dispatch log.
type Record struct {
	ID         uuid.UUID      `json:"id"`
	Kind       Kind           `json:"kind"`
	ReceivedAt time.Time      `json:"received_at"`
	Duration   time.Duration  `json:"duration"`
	Status     RecordStatus   `json:"status"`
	Reply      string         `json:"reply,omitempty"`
	Outcomes   []OutcomeBrief `json:"outcomes"`
}

// OutcomeBrief is the part of an Outcome worth keeping in a Record.
type OutcomeBrief struct {
	Target     string `json:"target"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}
