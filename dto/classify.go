package dto

import "time"

// Verdict is the terminal outcome of the classification pipeline for one
// request.
type Verdict struct {
	Status     string        `json:"status"`
	Blocked    bool          `json:"blocked"`
	Count      int64         `json:"count"`
	Limit      int           `json:"limit"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// ClassifyInput is what the pipeline needs from a request once identity has
// been resolved.
type ClassifyInput struct {
	IP        string
	UserAgent string
}
