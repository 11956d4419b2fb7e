package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varnstead/gatewall/dto"
	"github.com/varnstead/gatewall/shared"
)

type fakeArchiver struct {
	uploads map[string][]byte
	err     error
}

func (f *fakeArchiver) UploadArchive(name string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[name] = data
	return nil
}

func retentionSettings(days int) *dto.GuardSettings {
	return &dto.GuardSettings{
		LimitPerMinute: 5,
		BlockMinutes:   5,
		RetentionDays:  days,
	}
}

func newTestRetention(t *testing.T, settings *dto.GuardSettings) (*RetentionService, *EventStoreService, *fakeArchiver) {
	t.Helper()

	eventSvc := newTestEventStore(t)
	archiver := &fakeArchiver{}

	svc := &RetentionService{
		settingsSvc: &SettingsService{snapshot: settings},
		sqlSvc:      eventSvc.sqlSvc,
		eventSvc:    eventSvc,
		archiveSvc:  archiver,
	}
	return svc, eventSvc, archiver
}

func TestRunCleanup_DeletesPastHorizon(t *testing.T) {
	svc, eventSvc, _ := newTestRetention(t, retentionSettings(7))
	now := time.Now().UTC()

	insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.AddDate(0, 0, -8))
	insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.AddDate(0, 0, -6))

	resp, err := svc.RunCleanup()
	require.NoError(t, err)

	assert.False(t, resp.Skipped)
	assert.Equal(t, int64(1), resp.Deleted)

	remaining, err := eventSvc.CountSince("1.2.3.4", 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestRunCleanup_GuardIntervalSkipsRerun(t *testing.T) {
	svc, eventSvc, _ := newTestRetention(t, retentionSettings(7))
	now := time.Now().UTC()

	insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.AddDate(0, 0, -8))

	first, err := svc.RunCleanup()
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.AddDate(0, 0, -8))

	second, err := svc.RunCleanup()
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Zero(t, second.Deleted)
}

func TestRunCleanup_RunsAgainAfterGuardInterval(t *testing.T) {
	svc, eventSvc, _ := newTestRetention(t, retentionSettings(7))
	now := time.Now().UTC()

	require.NoError(t, svc.sqlSvc.SetState(lastCheckStateKey, now.Add(-7*time.Hour)))
	insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.AddDate(0, 0, -8))

	resp, err := svc.RunCleanup()
	require.NoError(t, err)
	assert.False(t, resp.Skipped)
	assert.Equal(t, int64(1), resp.Deleted)
}

func TestRunCleanup_DisabledRetentionSkips(t *testing.T) {
	svc, eventSvc, _ := newTestRetention(t, retentionSettings(0))
	now := time.Now().UTC()

	insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.AddDate(0, 0, -100))

	resp, err := svc.RunCleanup()
	require.NoError(t, err)
	assert.True(t, resp.Skipped)

	remaining, err := eventSvc.CountSince("1.2.3.4", 200*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestRunCleanup_ArchivesBeforeDelete(t *testing.T) {
	settings := retentionSettings(7)
	settings.ArchiveEnabled = true
	svc, eventSvc, archiver := newTestRetention(t, settings)
	now := time.Now().UTC()

	insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.AddDate(0, 0, -8))

	resp, err := svc.RunCleanup()
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Deleted)
	assert.Len(t, archiver.uploads, 1)
}

func TestRunCleanup_ArchiveFailureSkipsDeletion(t *testing.T) {
	settings := retentionSettings(7)
	settings.ArchiveEnabled = true
	svc, eventSvc, archiver := newTestRetention(t, settings)
	archiver.err = errors.New("bucket unavailable")
	now := time.Now().UTC()

	insertEventAt(t, eventSvc, "1.2.3.4", shared.StatusAllowed, now.AddDate(0, 0, -8))

	_, err := svc.RunCleanup()
	require.Error(t, err)

	remaining, err := eventSvc.CountSince("1.2.3.4", 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}
