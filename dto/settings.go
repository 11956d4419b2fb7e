package dto

import "time"

// GuardSettings is the immutable configuration snapshot the classification
// pipeline evaluates against. It is validated once at startup; components never
// mutate it.
type GuardSettings struct {
	LimitPerMinute         int      `json:"limit_per_minute" validate:"required,gt=0"`
	BlockMinutes           int      `json:"block_minutes" validate:"required,gt=0"`
	Whitelist              []string `json:"whitelist" validate:"dive,ip"`
	AllowedBots            []string `json:"allowed_bots"`
	BlockedBots            []string `json:"blocked_bots"`
	NotificationsEnabled   bool     `json:"notifications_enabled"`
	NotificationRecipients []string `json:"notification_recipients"`
	CooldownSeconds        int      `json:"cooldown_seconds" validate:"gte=0"`
	RetentionDays          int      `json:"retention_days" validate:"gte=0"`
	ArchiveEnabled         bool     `json:"archive_enabled"`
}

func (s *GuardSettings) Validate() error {
	return GetValidator().Struct(s)
}

func (s *GuardSettings) BlockDuration() time.Duration {
	return time.Duration(s.BlockMinutes) * time.Minute
}

func (s *GuardSettings) Cooldown() time.Duration {
	return time.Duration(s.CooldownSeconds) * time.Second
}

// IsWhitelisted reports an exact match against the whitelist.
func (s *GuardSettings) IsWhitelisted(ip string) bool {
	for _, w := range s.Whitelist {
		if w == ip {
			return true
		}
	}
	return false
}
