package delivery

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/youmna-rabie/socket-relay/internal/types"
)

// Reply texts shown to the user who ran a command.
const (
	NoBackendText   = "Failed to talk to backend. socket-relay didn't find any configured webhook target."
	UnreadableText  = "Internal error. The action may have executed, but I was unable to retrieve the result."
	EmptyReplyText  = "Done. The webhook returned no message."
	InternalErrText = "Internal error. The relay failed while handling this command."
)

// ReplyText maps an outcome onto the one-line acknowledgement for a command.
// The result is never empty.
func ReplyText(o types.Outcome) string {
	if o.Delivered() {
		if o.Body == "" {
			return EmptyReplyText
		}
		return o.Body
	}

	var se *StatusError
	switch {
	case errors.As(o.Err, &se):
		return fmt.Sprintf("Internal error. Bridge couldn't connect to webhook. Returned code: %d %s",
			se.Code, http.StatusText(se.Code))
	case errors.Is(o.Err, ErrResponseBody):
		return UnreadableText
	case errors.Is(o.Err, ErrEncode):
		return fmt.Sprintf("Internal error. Unable to encode event payload: %v", o.Err)
	default:
		return fmt.Sprintf("Failed to send message to webhook. Error: %s", o.Message())
	}
}
