package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/minimib/internal/notify"
	"github.com/roach88/minimib/internal/testutil"
)

func alertEvent(id string, value int64, at time.Time) notify.Event {
	return notify.Event{
		ID:           id,
		Attribute:    "cpuUsage",
		Value:        value,
		Threshold:    80,
		Timestamp:    at,
		ManagerEmail: "admin@example.com",
	}
}

func TestAlerts_RecordAndList(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "test.db"))

	out := notify.Outcome{EventID: "a1", Results: []notify.Result{
		{Sink: "trap", Status: notify.StatusDelivered},
		{Sink: "mail", Status: notify.StatusFailed, Err: errors.New("connection refused")},
	}}
	require.NoError(t, s.RecordAlert(ctx, alertEvent("a1", 90, testutil.Epoch), out))

	got, err := s.ListAlerts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	rec := got[0]
	assert.Equal(t, "a1", rec.ID)
	assert.True(t, rec.RaisedAt.Equal(testutil.Epoch))
	assert.Equal(t, "cpuUsage", rec.Attribute)
	assert.EqualValues(t, 90, rec.Value)
	assert.EqualValues(t, 80, rec.Threshold)
	assert.Equal(t, "admin@example.com", rec.Recipient)
	assert.Equal(t, map[string]string{
		"trap": "delivered",
		"mail": "failed: connection refused",
	}, rec.Sinks)
}

func TestAlerts_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "test.db"))

	for i, id := range []string{"a1", "a2", "a3"} {
		at := testutil.Epoch.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.RecordAlert(ctx, alertEvent(id, int64(81+i), at), notify.Outcome{EventID: id}))
	}

	got, err := s.ListAlerts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a3", got[0].ID)
	assert.Equal(t, "a2", got[1].ID)
}

func TestAlerts_DuplicateIDIgnored(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "test.db"))

	ev := alertEvent("a1", 90, testutil.Epoch)
	require.NoError(t, s.RecordAlert(ctx, ev, notify.Outcome{}))
	require.NoError(t, s.RecordAlert(ctx, ev, notify.Outcome{}))

	got, err := s.ListAlerts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAlerts_EmptyHistory(t *testing.T) {
	s := openSQLite(t, filepath.Join(t.TempDir(), "test.db"))

	got, err := s.ListAlerts(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAlerts_RecorderInterface(t *testing.T) {
	var _ notify.Recorder = (*SQLite)(nil)
}
