package types

import (
	"fmt"
	"time"
)

// Env is the environment tag of a delivery target.
type Env string

const (
	EnvProd Env = "prod"
	EnvDev  Env = "dev"
)

// Route names the event family a target receives.
type Route string

const (
	RouteCommand  Route = "command"
	RouteCallback Route = "callback"
)

// Target is a configured webhook endpoint. A nil *Target is an unconfigured
// slot.
type Target struct {
	Name               string        `json:"name"`
	URL                string        `json:"url"`
	Env                Env           `json:"env"`
	Route              Route         `json:"route"`
	Timeout            time.Duration `json:"timeout"`
	InsecureSkipVerify bool          `json:"insecure_skip_verify"`
}

// Outcome is the result of delivering one event to one target.
type Outcome struct {
	Target     string        `json:"target"`
	StatusCode int           `json:"status_code,omitempty"`
	Body       string        `json:"body,omitempty"`
	Err        error         `json:"-"`
	Latency    time.Duration `json:"latency"`
}

// Delivered reports whether the target accepted the event and returned a
// usable body.
func (o Outcome) Delivered() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300
}

// Message returns the body for delivered outcomes and a human-readable
// failure description otherwise.
func (o Outcome) Message() string {
	if o.Delivered() {
		return o.Body
	}
	if o.Err != nil {
		return o.Err.Error()
	}
	return fmt.Sprintf("webhook %s returned status %d", o.Target, o.StatusCode)
}

// Brief strips the outcome down for the recent-dispatch log.
func (o Outcome) Brief() OutcomeBrief {
	b := OutcomeBrief{Target: o.Target, StatusCode: o.StatusCode}
	if !o.Delivered() {
		b.Error = o.Message()
	}
	return b
}
