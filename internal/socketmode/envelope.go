package socketmode

import "encoding/json"

// Envelope types sent by the gateway.
const (
	typeHello         = "hello"
	typeDisconnect    = "disconnect"
	typeSlashCommands = "slash_commands"
	typeEventsAPI     = "events_api"
	typeInteractive   = "interactive"
)

// envelope is one frame read from the socket.
type envelope struct {
	EnvelopeID             string          `json:"envelope_id,omitempty"`
	Type                   string          `json:"type"`
	Payload                json.RawMessage `json:"payload,omitempty"`
	AcceptsResponsePayload bool            `json:"accepts_response_payload,omitempty"`
	RetryAttempt           int             `json:"retry_attempt,omitempty"`
	RetryReason            string          `json:"retry_reason,omitempty"`
	Reason                 string          `json:"reason,omitempty"`
	NumConnections         int             `json:"num_connections,omitempty"`
}

// ack acknowledges an envelope, optionally carrying a response payload.
type ack struct {
	EnvelopeID string `json:"envelope_id"`
	Payload    any    `json:"payload,omitempty"`
}

// commandResponse is the response payload for a slash command.
type commandResponse struct {
	Text string `json:"text"`
}

// openResponse is the body of apps.connections.open.
type openResponse struct {
	OK    bool   `json:"ok"`
	URL   string `json:"url"`
	Error string `json:"error"`
}
