package dto

import "time"

type LoginRequest struct {
	OperatorKey string `json:"operator_key" validate:"required"`
}

func (r *LoginRequest) Validate() error {
	return GetValidator().Struct(r)
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type StatsResponse struct {
	WindowMinutes int              `json:"window_minutes"`
	ByStatus      map[string]int64 `json:"by_status"`
	TotalEvents   int64            `json:"total_events"`
	Timestamp     time.Time        `json:"timestamp"`
}

type RetentionResponse struct {
	Deleted int64     `json:"deleted"`
	Skipped bool      `json:"skipped"`
	RanAt   time.Time `json:"ran_at"`
}

type WipeResponse struct {
	Deleted int64 `json:"deleted"`
}

// LimitStatusResponse reports cached rolling counts for one IP, keyed by
// window length in minutes.
type LimitStatusResponse struct {
	IP     string           `json:"ip"`
	Counts map[string]int64 `json:"counts"`
}
