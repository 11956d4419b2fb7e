package services

import (
	"fmt"
	"net/netip"
	"time"
	"unicode/utf8"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/varnstead/gatewall/model"
	"github.com/varnstead/gatewall/shared"
)

// EventStoreService is the durable log of classified requests and the source
// of truth for rolling-window counts and retention.
type EventStoreService struct {
	context.DefaultService

	sqlSvc *SqliteService
}

const EVENT_STORE_SVC = "event_store_svc"

func (svc EventStoreService) Id() string {
	return EVENT_STORE_SVC
}

func (svc *EventStoreService) Start() error {
	svc.sqlSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	return nil
}

// Append persists one classified request. Status is coerced into the closed
// status set and the user agent is truncated rather than failing the write;
// only a missing or malformed IP rejects the event.
func (svc *EventStoreService) Append(event *model.RequestEvent) error {
	if _, err := netip.ParseAddr(event.IP); err != nil {
		return fmt.Errorf("invalid event ip %q: %w", event.IP, err)
	}

	event.Status = shared.NormalizeStatus(event.Status)

	if event.UserAgent == "" {
		event.UserAgent = shared.UserAgentUnknown
	}
	if utf8.RuneCountInString(event.UserAgent) > shared.UserAgentMaxLen {
		// Cut on a rune boundary so a multi-byte agent string stays valid.
		event.UserAgent = string([]rune(event.UserAgent)[:shared.UserAgentMaxLen])
	}

	if event.Count <= 0 {
		event.Count = 1
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.OccurredAt = time.Now().UTC()

	if err := svc.sqlSvc.Db().Create(event).Error; err != nil {
		return svc.sqlSvc.HandleError(err)
	}
	return nil
}

// CountSince sums event counts for ip within [now-window, now]. This is the
// fallback path behind the rate counter cache.
func (svc *EventStoreService) CountSince(ip string, window time.Duration) (int64, error) {
	var total int64
	err := svc.sqlSvc.Db().Model(&model.RequestEvent{}).
		Select("COALESCE(SUM(count), 0)").
		Where("ip = ? AND occurred_at >= ?", ip, time.Now().UTC().Add(-window)).
		Scan(&total).Error
	if err != nil {
		return 0, svc.sqlSvc.HandleError(err)
	}
	return total, nil
}

// DeleteOlderThan bulk-deletes events before cutoff and returns the number of
// rows removed. Repeating a cutoff is a safe no-op once exhausted.
func (svc *EventStoreService) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := svc.sqlSvc.Db().Where("occurred_at < ?", cutoff).Delete(&model.RequestEvent{})
	if res.Error != nil {
		return 0, svc.sqlSvc.HandleError(res.Error)
	}
	return res.RowsAffected, nil
}

// EventsOlderThan loads the rows a retention run is about to delete, oldest
// first, for archival.
func (svc *EventStoreService) EventsOlderThan(cutoff time.Time) ([]model.RequestEvent, error) {
	var events []model.RequestEvent
	err := svc.sqlSvc.Db().
		Where("occurred_at < ?", cutoff).
		Order("occurred_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}
	return events, nil
}

// CountsByStatusSince aggregates event counts per status for the stats
// endpoint.
func (svc *EventStoreService) CountsByStatusSince(window time.Duration) (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}

	var rows []row
	err := svc.sqlSvc.Db().Model(&model.RequestEvent{}).
		Select("status, COALESCE(SUM(count), 0) AS total").
		Where("occurred_at >= ?", time.Now().UTC().Add(-window)).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, svc.sqlSvc.HandleError(err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

// WipeAll removes every event row. Exposed to the admin data-wipe endpoint
// only.
func (svc *EventStoreService) WipeAll() (int64, error) {
	res := svc.sqlSvc.Db().Where("1 = 1").Delete(&model.RequestEvent{})
	if res.Error != nil {
		return 0, svc.sqlSvc.HandleError(res.Error)
	}
	log.WithField("deleted", res.RowsAffected).Warn("Request event log wiped")
	return res.RowsAffected, nil
}
