package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/varnstead/gatewall/dto"
	"github.com/varnstead/gatewall/model"
	"github.com/varnstead/gatewall/shared"
)

type alertNotifier interface {
	MaybeNotify(ip string, count int64, userAgent string)
}

// ClassifierService runs the ordered verdict pipeline for every inbound
// request: allowed bots, blocked bots, whitelist, then the rolling-window rate
// check. First match wins; trusted crawlers are never blocked however prolific,
// malicious bots never pass however quiet, and whitelisted IPs bypass the rate
// check entirely. Every path appends exactly one event, so the event log is a
// complete audit trail of verdicts.
type ClassifierService struct {
	appContext.DefaultService

	settingsSvc *SettingsService
	identitySvc *IdentityService
	eventSvc    *EventStoreService
	counterSvc  *RateCounterService
	notifySvc   alertNotifier
}

const CLASSIFIER_SVC = "classifier_svc"

func (svc ClassifierService) Id() string {
	return CLASSIFIER_SVC
}

func (svc *ClassifierService) Start() error {
	svc.settingsSvc = svc.Service(SETTINGS_SVC).(*SettingsService)
	svc.identitySvc = svc.Service(IDENTITY_SVC).(*IdentityService)
	svc.eventSvc = svc.Service(EVENT_STORE_SVC).(*EventStoreService)
	svc.counterSvc = svc.Service(RATE_COUNTER_SVC).(*RateCounterService)
	svc.notifySvc = svc.Service(NOTIFIER_SVC).(*NotifierService)
	return nil
}

// Classify produces the verdict for one resolved request and appends its
// event. Counting or persistence failures degrade to an allowed verdict;
// under-enforcing once is a smaller availability risk than blocking on an
// internal fault.
func (svc *ClassifierService) Classify(ctx context.Context, in dto.ClassifyInput) dto.Verdict {
	settings := svc.settingsSvc.Snapshot()
	ua := strings.ToLower(in.UserAgent)

	if matchesBotList(ua, settings.AllowedBots) {
		svc.appendEvent(ctx, in, shared.StatusGoodBot)
		return svc.verdict(shared.StatusGoodBot, false, 0)
	}

	if matchesBotList(ua, settings.BlockedBots) {
		svc.appendEvent(ctx, in, shared.StatusBadBot)
		return svc.verdict(shared.StatusBadBot, true, 0)
	}

	if settings.IsWhitelisted(in.IP) {
		svc.appendEvent(ctx, in, shared.StatusWhitelisted)
		return svc.verdict(shared.StatusWhitelisted, false, 0)
	}

	count, err := svc.counterSvc.IncrementAndGet(ctx, in.IP)
	if err != nil {
		log.WithError(err).WithField("ip", in.IP).Error("Rate count unavailable, allowing request")
		svc.appendEvent(ctx, in, shared.StatusAllowed)
		return svc.verdict(shared.StatusAllowed, false, 0)
	}

	// count includes the current request, so strictly-greater matches the
	// pre-increment >= limit contract.
	if count > int64(settings.LimitPerMinute) {
		svc.appendEvent(ctx, in, shared.StatusBlocked)
		svc.notifySvc.MaybeNotify(in.IP, count, in.UserAgent)
		return svc.verdict(shared.StatusBlocked, true, count)
	}

	svc.appendEvent(ctx, in, shared.StatusAllowed)
	return svc.verdict(shared.StatusAllowed, false, count)
}

// Guard is the origin-facing middleware. An unresolvable identity or any
// internal fault lets the request through; the only client-visible outcome
// besides passthrough is the deliberate 429 contract.
func (svc *ClassifierService) Guard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := func(name string) string { return c.Get(name) }

		ip, ok := svc.identitySvc.Resolve(header, c.Context().RemoteAddr().String())
		if !ok {
			log.WithField("remote_addr", c.Context().RemoteAddr().String()).
				Warn("No usable client IP, allowing request")
			return c.Next()
		}

		c.Locals(shared.ClientIP, ip)

		verdict := svc.Classify(c.UserContext(), dto.ClassifyInput{
			IP:        ip,
			UserAgent: string(c.Request().Header.UserAgent()),
		})

		verdictsTotal.WithLabelValues(verdict.Status).Inc()

		if verdict.Blocked {
			blocksTotal.Inc()
			return svc.blockResponse(c, verdict)
		}

		return c.Next()
	}
}

func (svc *ClassifierService) blockResponse(c *fiber.Ctx, verdict dto.Verdict) error {
	blockMinutes := svc.settingsSvc.Snapshot().BlockMinutes

	c.Set("Retry-After", strconv.Itoa(blockMinutes*60))
	c.Set("X-RateLimit-Limit", strconv.Itoa(verdict.Limit))
	c.Set("X-RateLimit-Window", strconv.Itoa(shared.RateWindowSeconds))
	c.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)

	body := fmt.Sprintf("Too many requests. Please wait %d minute(s) before retrying.", blockMinutes)
	return c.Status(fiber.StatusTooManyRequests).SendString(body)
}

func (svc *ClassifierService) verdict(status string, blocked bool, count int64) dto.Verdict {
	settings := svc.settingsSvc.Snapshot()
	v := dto.Verdict{
		Status:  status,
		Blocked: blocked,
		Count:   count,
		Limit:   settings.LimitPerMinute,
	}
	if blocked {
		v.RetryAfter = settings.BlockDuration()
	}
	return v
}

func (svc *ClassifierService) appendEvent(ctx context.Context, in dto.ClassifyInput, status string) {
	event := &model.RequestEvent{
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Count:     1,
		Status:    status,
	}

	if err := svc.eventSvc.Append(event); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"ip":     in.IP,
			"status": status,
		}).Error("Failed to persist request event")
		return
	}

	svc.counterSvc.Invalidate(ctx, in.IP)
}

// matchesBotList does a case-insensitive substring match of ua against each
// entry, in list order.
func matchesBotList(ua string, entries []string) bool {
	if ua == "" {
		return false
	}
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		if strings.Contains(ua, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}
