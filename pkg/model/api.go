package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Message   string    `json:"message,omitempty"`
	Error     *APIError `json:"error"`
}

// CancelResult reports the outcome of a cancellation request.
// Cancelled is false when the instruction had already left the waiting pool.
type CancelResult struct {
	Code      string `json:"instruction_code"`
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason,omitempty"`
}

// BatchResult summarises a batch submission.
type BatchResult struct {
	Accepted int `json:"accepted"`
}
