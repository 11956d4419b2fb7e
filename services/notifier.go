package services

import (
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/varnstead/gatewall/dto"
)

type alertMailer interface {
	SendRateLimitAlert(recipients []string, data RateLimitAlertData) error
}

type ipLocator interface {
	GetLocationByIP(ip string) (string, error)
}

// NotifierService sends cooldown-gated alert emails when a rate-limit verdict
// fires. The cooldown is global across all IPs, which bounds email volume
// during a distributed attack, and its timestamp persists across restarts.
type NotifierService struct {
	context.DefaultService

	settingsSvc *SettingsService
	sqlSvc      *SqliteService
	mailer      alertMailer
	locator     ipLocator
}

const NOTIFIER_SVC = "notifier_svc"

const cooldownStateKey = "notifier:last_alert"

func (svc NotifierService) Id() string {
	return NOTIFIER_SVC
}

func (svc *NotifierService) Start() error {
	svc.settingsSvc = svc.Service(SETTINGS_SVC).(*SettingsService)
	svc.sqlSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	svc.mailer = svc.Service(EMAIL_SVC).(*EmailService)
	svc.locator = svc.Service(GEOLOCATION_SVC).(*GeolocationService)
	return nil
}

// MaybeNotify alerts the configured recipients about ip unless notifications
// are disabled, no valid recipient remains, or the cooldown has not elapsed.
// The cooldown timestamp advances whether or not the mailer succeeds, so a
// flapping SMTP server cannot turn an attack into an email flood.
func (svc *NotifierService) MaybeNotify(ip string, count int64, userAgent string) {
	settings := svc.settingsSvc.Snapshot()

	if !settings.NotificationsEnabled {
		return
	}

	recipients := validRecipients(settings.NotificationRecipients)
	if len(recipients) == 0 {
		return
	}

	last, err := svc.sqlSvc.GetState(cooldownStateKey)
	if err != nil {
		log.WithError(err).Error("Failed to read notification cooldown state")
		return
	}

	now := time.Now().UTC()
	if !last.IsZero() && now.Sub(last) < settings.Cooldown() {
		notificationsTotal.WithLabelValues("suppressed").Inc()
		return
	}

	if err := svc.sqlSvc.SetState(cooldownStateKey, now); err != nil {
		log.WithError(err).Error("Failed to persist notification cooldown state")
	}

	location := "Unknown"
	if svc.locator != nil {
		if loc, lerr := svc.locator.GetLocationByIP(ip); lerr == nil {
			location = loc
		}
	}

	data := RateLimitAlertData{
		IP:        ip,
		Count:     count,
		Timestamp: now.Format(time.RFC3339),
		UserAgent: userAgent,
		Location:  location,
	}

	if err := svc.mailer.SendRateLimitAlert(recipients, data); err != nil {
		notificationsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).WithField("ip", ip).Error("Failed to send rate limit alert")
		return
	}
	notificationsTotal.WithLabelValues("sent").Inc()
}

func validRecipients(addrs []string) []string {
	var out []string
	for _, addr := range addrs {
		if dto.ValidEmail(addr) {
			out = append(out, addr)
		} else if addr != "" {
			log.WithField("recipient", addr).Warn("Skipping invalid notification recipient")
		}
	}
	return out
}
