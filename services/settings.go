package services

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/varnstead/gatewall/dto"
)

// SettingsService builds the immutable guard settings snapshot from the
// environment. It is the validated hand-in point for configuration; nothing
// downstream re-validates or mutates the snapshot.
type SettingsService struct {
	context.DefaultService

	snapshot *dto.GuardSettings
}

const SETTINGS_SVC = "settings_svc"

// Search-engine and AI crawlers that must never be blocked however prolific.
var defaultAllowedBots = []string{
	"Googlebot",
	"Bingbot",
	"Slurp",
	"DuckDuckBot",
	"Baiduspider",
	"YandexBot",
	"Applebot",
	"facebookexternalhit",
	"GPTBot",
	"ClaudeBot",
	"PerplexityBot",
}

// Scraper signatures blocked regardless of request volume.
var defaultBlockedBots = []string{
	"MJ12bot",
	"AhrefsBot",
	"SemrushBot",
	"DotBot",
	"BLEXBot",
	"PetalBot",
	"Bytespider",
	"ZoominfoBot",
	"serpstatbot",
}

func (svc SettingsService) Id() string {
	return SETTINGS_SVC
}

func (svc *SettingsService) Configure(ctx *context.Context) error {
	svc.snapshot = &dto.GuardSettings{
		LimitPerMinute:         envInt("GUARD_LIMIT_PER_MINUTE", 60),
		BlockMinutes:           envInt("GUARD_BLOCK_MINUTES", 5),
		Whitelist:              envList("GUARD_WHITELIST", nil),
		AllowedBots:            envList("GUARD_ALLOWED_BOTS", defaultAllowedBots),
		BlockedBots:            envList("GUARD_BLOCKED_BOTS", defaultBlockedBots),
		NotificationsEnabled:   envBool("GUARD_NOTIFICATIONS_ENABLED"),
		NotificationRecipients: envList("GUARD_NOTIFICATION_RECIPIENTS", nil),
		CooldownSeconds:        envInt("GUARD_NOTIFICATION_COOLDOWN_SECONDS", 900),
		RetentionDays:          envInt("GUARD_RETENTION_DAYS", 30),
		ArchiveEnabled:         envBool("ARCHIVE_ENABLED"),
	}

	if err := svc.snapshot.Validate(); err != nil {
		return fmt.Errorf("invalid guard settings: %w", err)
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *SettingsService) Start() error {
	log.WithFields(log.Fields{
		"limit_per_minute": svc.snapshot.LimitPerMinute,
		"block_minutes":    svc.snapshot.BlockMinutes,
		"whitelist":        len(svc.snapshot.Whitelist),
		"allowed_bots":     len(svc.snapshot.AllowedBots),
		"blocked_bots":     len(svc.snapshot.BlockedBots),
		"retention_days":   svc.snapshot.RetentionDays,
	}).Info("Guard settings loaded")

	return nil
}

// Snapshot returns the settings loaded at startup. Callers treat it as
// read-only.
func (svc *SettingsService) Snapshot() *dto.GuardSettings {
	return svc.snapshot
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.WithField("key", key).Warnf("Ignoring non-numeric value %q", v)
	}
	return fallback
}

func envBool(key string) bool {
	return os.Getenv(key) == "true"
}

func envList(key string, fallback []string) []string {
	v, set := os.LookupEnv(key)
	if !set {
		return fallback
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
