package api

import (
	"encoding/json"

	"github.com/PiranhaCodes/jobshell/internal/job"
)

// Actions served on the status socket.
const (
	ActionPing = "ping"
	ActionList = "list"
)

// Request represents an incoming request over the UNIX socket.
type Request struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Response represents a response to a request.
type Response struct {
	Ok   bool   `json:"ok"`
	Err  string `json:"err,omitempty"`
	Data any    `json:"data,omitempty"`
}

// rawResponse is Response as the client decodes it.
type rawResponse struct {
	Ok   bool            `json:"ok"`
	Err  string          `json:"err,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PingResponse is the data returned from a ping action.
type PingResponse struct {
	Pid  int `json:"pid"`
	Jobs int `json:"jobs"`
}

// ListRequest is the data for a list action. An empty State lists every job.
type ListRequest struct {
	State string `json:"state,omitempty"`
}

// ListResponse is the data returned from a list action.
type ListResponse struct {
	Jobs  []job.Info `json:"jobs"`
	Count int        `json:"count"`
}
