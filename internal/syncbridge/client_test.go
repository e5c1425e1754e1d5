package syncbridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hadirku/internal/attendance"
	"hadirku/internal/roster"
)

func sampleRecord() attendance.Record {
	scan := time.Date(2025, 3, 10, 7, 40, 0, 0, time.UTC)
	return attendance.Record{
		StudentID:   "s1",
		Date:        "2025-03-10",
		Status:      attendance.StatusPresent,
		Method:      attendance.MethodQR,
		ScanTime:    &scan,
		MinutesLate: 25,
	}
}

func TestPushRecord(t *testing.T) {
	var gotPath, gotAuth string
	var gotRecord attendance.Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRecord))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "secret", Enabled: true})
	require.NoError(t, c.PushRecord(context.Background(), sampleRecord()))

	assert.Equal(t, "/api/attendance/scan", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "s1", gotRecord.StudentID)
	assert.Equal(t, 25, gotRecord.MinutesLate)
}

func TestPushRecordNotConfigured(t *testing.T) {
	c := New(Config{})
	err := c.PushRecord(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, ErrMirrorNotConfigured)
}

func TestPushRecordRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Enabled: true})
	assert.Error(t, c.PushRecord(context.Background(), sampleRecord()))
}

func TestSyncToHubUsesHubToken(t *testing.T) {
	var gotPath, gotToken string
	var gotSnap Snapshot
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Hub-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotSnap))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{HubURL: srv.URL, HubToken: "hub-token"})
	snap := Snapshot{
		Version:    SnapshotVersion,
		Timestamp:  time.Now().UTC(),
		Students:   []roster.Student{{ID: "s1", Name: "Aisyah", RollNumber: "1001"}},
		Attendance: []attendance.Record{sampleRecord()},
	}
	require.NoError(t, c.SyncToHub(context.Background(), snap))

	assert.Equal(t, "/api/v1/sync", gotPath)
	assert.Equal(t, "hub-token", gotToken)
	assert.Equal(t, SnapshotVersion, gotSnap.Version)
	require.Len(t, gotSnap.Students, 1)
}

func TestPullBackup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/backup/pull", r.URL.Path)
		json.NewEncoder(w).Encode(Snapshot{
			Version:  SnapshotVersion,
			Students: []roster.Student{{ID: "s1", Name: "Aisyah", RollNumber: "1001"}},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	snap, err := c.PullBackup(context.Background())

	require.NoError(t, err)
	require.Len(t, snap.Students, 1)
	assert.Equal(t, "Aisyah", snap.Students[0].Name)
}

func TestPullBackupEmptySnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.PullBackup(context.Background())
	assert.ErrorIs(t, err, ErrEmptySnapshot)
}

type memLedger struct {
	recs   []attendance.Record
	synced map[string]bool
}

func (m *memLedger) Unsynced(context.Context) ([]attendance.Record, error) {
	var out []attendance.Record
	for _, rec := range m.recs {
		if !m.synced[rec.StudentID+"|"+rec.Date] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memLedger) MarkSynced(_ context.Context, studentID, date string) error {
	m.synced[studentID+"|"+date] = true
	return nil
}

type flakyPusher struct {
	failFor map[string]bool
}

func (p flakyPusher) PushRecord(_ context.Context, rec attendance.Record) error {
	if p.failFor[rec.StudentID] {
		return errors.New("mirror down")
	}
	return nil
}

func TestReconcileFlipsSyncedOnSuccessOnly(t *testing.T) {
	a, b := sampleRecord(), sampleRecord()
	b.StudentID = "s2"
	ledger := &memLedger{recs: []attendance.Record{a, b}, synced: map[string]bool{}}

	pushed, err := Reconcile(context.Background(), flakyPusher{failFor: map[string]bool{"s1": true}}, ledger)

	require.NoError(t, err)
	assert.Equal(t, 1, pushed)
	assert.False(t, ledger.synced["s1|2025-03-10"])
	assert.True(t, ledger.synced["s2|2025-03-10"])

	// A later pass with the mirror back up picks the failure back up.
	pushed, err = Reconcile(context.Background(), flakyPusher{failFor: map[string]bool{}}, ledger)
	require.NoError(t, err)
	assert.Equal(t, 1, pushed)
	assert.True(t, ledger.synced["s1|2025-03-10"])
}
