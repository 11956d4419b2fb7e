package services

import (
	"fmt"
	"time"

	"github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/varnstead/gatewall/dto"
	"github.com/varnstead/gatewall/shared"
)

type eventArchiver interface {
	UploadArchive(name string, data []byte) error
}

// RetentionService deletes event rows past the retention horizon. A persisted
// guard interval keeps multiple processes sharing the same periodic trigger
// from running redundant bulk deletes; the interval check is the only mutual
// exclusion, time-based rather than lock-based.
type RetentionService struct {
	context.DefaultService

	settingsSvc *SettingsService
	sqlSvc      *SqliteService
	eventSvc    *EventStoreService
	archiveSvc  eventArchiver
}

const RETENTION_SVC = "retention_svc"

const (
	lastCheckStateKey  = "retention:last_check"
	cleanupGuard       = 6 * time.Hour
	cleanupJobInterval = time.Hour
)

func (svc RetentionService) Id() string {
	return RETENTION_SVC
}

func (svc *RetentionService) Start() error {
	svc.settingsSvc = svc.Service(SETTINGS_SVC).(*SettingsService)
	svc.sqlSvc = svc.Service(SQLITE_SVC).(*SqliteService)
	svc.eventSvc = svc.Service(EVENT_STORE_SVC).(*EventStoreService)
	svc.archiveSvc = svc.Service(MINIO_SVC).(*MinIOService)

	go svc.startCleanupJob()

	return nil
}

// RunCleanup deletes events older than the retention horizon. No-op when
// retention is disabled or the guard interval since the last run has not
// elapsed. With archival enabled the expiring rows are uploaded first, and an
// archive failure skips deletion for the run so unarchived rows are never
// lost.
func (svc *RetentionService) RunCleanup() (*dto.RetentionResponse, error) {
	settings := svc.settingsSvc.Snapshot()
	now := time.Now().UTC()

	if settings.RetentionDays == 0 {
		return &dto.RetentionResponse{Skipped: true, RanAt: now}, nil
	}

	last, err := svc.sqlSvc.GetState(lastCheckStateKey)
	if err != nil {
		return nil, err
	}
	if !last.IsZero() && now.Sub(last) < cleanupGuard {
		return &dto.RetentionResponse{Skipped: true, RanAt: now}, nil
	}

	cutoff := now.AddDate(0, 0, -settings.RetentionDays)

	if settings.ArchiveEnabled {
		if err := svc.archiveExpired(cutoff); err != nil {
			return nil, fmt.Errorf("archive failed, deletion skipped: %w", err)
		}
	}

	deleted, err := svc.eventSvc.DeleteOlderThan(cutoff)
	if err != nil {
		return nil, err
	}

	if err := svc.sqlSvc.SetState(lastCheckStateKey, now); err != nil {
		log.WithError(err).Error("Failed to persist retention last check")
	}

	retentionDeletedTotal.Add(float64(deleted))
	log.WithFields(log.Fields{
		"deleted": deleted,
		"cutoff":  cutoff,
	}).Info("Retention cleanup completed")

	return &dto.RetentionResponse{Deleted: deleted, RanAt: now}, nil
}

func (svc *RetentionService) archiveExpired(cutoff time.Time) error {
	events, err := svc.eventSvc.EventsOlderThan(cutoff)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	data, err := shared.MarshalJSON(events)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("archives/events-%s.json", cutoff.Format("20060102-150405"))
	if err := svc.archiveSvc.UploadArchive(name, data); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"object": name,
		"events": len(events),
	}).Info("Archived expiring events")
	return nil
}

func (svc *RetentionService) startCleanupJob() {
	ticker := time.NewTicker(cleanupJobInterval)
	defer ticker.Stop()

	for range ticker.C {
		if _, err := svc.RunCleanup(); err != nil {
			log.WithError(err).Error("Retention cleanup error")
		}
	}
}
