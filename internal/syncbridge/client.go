package syncbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"hadirku/internal/attendance"
	"hadirku/internal/roster"
)

// Snapshot is the full-database payload exchanged with the mirror, the hub,
// and the export/import endpoints.
type Snapshot struct {
	Version         int                 `json:"version"`
	Timestamp       time.Time           `json:"timestamp"`
	Students        []roster.Student    `json:"students"`
	Attendance      []attendance.Record `json:"attendance"`
	DeletedStudents []roster.Student    `json:"deletedStudents,omitempty"`
}

// SnapshotVersion is the current payload version.
const SnapshotVersion = 4

// Errors surfaced to the admin endpoints.
var (
	ErrMirrorNotConfigured = errors.New("mirror base URL not configured")
	ErrHubNotConfigured    = errors.New("hub URL or token not configured")
	ErrEmptySnapshot       = errors.New("remote snapshot empty or invalid")
)

// Config holds the two remote destinations. Either may be absent.
type Config struct {
	BaseURL  string
	APIKey   string
	Enabled  bool
	HubURL   string
	HubToken string
}

// Client talks to the cloud mirror and the hub. Both are thin JSON-over-HTTP
// services; the client never retries, leaving recovery to the reconciliation
// pass and the synced flag.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a sync client.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, http: &http.Client{Timeout: 30 * time.Second}}
}

// MirrorEnabled reports whether per-record pushes should happen.
func (c *Client) MirrorEnabled() bool {
	return c.cfg.Enabled && c.cfg.BaseURL != ""
}

// PushRecord mirrors one ledger row.
func (c *Client) PushRecord(ctx context.Context, rec attendance.Record) error {
	if !c.MirrorEnabled() {
		return ErrMirrorNotConfigured
	}
	return c.postJSON(ctx, c.cfg.BaseURL+"/api/attendance/scan", c.mirrorHeaders(), rec)
}

// PushBackup uploads a full snapshot to the mirror.
func (c *Client) PushBackup(ctx context.Context, snap Snapshot) error {
	if c.cfg.BaseURL == "" {
		return ErrMirrorNotConfigured
	}
	return c.postJSON(ctx, c.cfg.BaseURL+"/api/backup/push", c.mirrorHeaders(), snap)
}

// PullBackup downloads the mirror's snapshot.
func (c *Client) PullBackup(ctx context.Context) (Snapshot, error) {
	if c.cfg.BaseURL == "" {
		return Snapshot{}, ErrMirrorNotConfigured
	}
	return c.getSnapshot(ctx, c.cfg.BaseURL+"/api/backup/pull", c.mirrorHeaders())
}

// SyncToHub uploads a full snapshot to the hub.
func (c *Client) SyncToHub(ctx context.Context, snap Snapshot) error {
	if c.cfg.HubURL == "" || c.cfg.HubToken == "" {
		return ErrHubNotConfigured
	}
	return c.postJSON(ctx, c.cfg.HubURL+"/api/v1/sync", c.hubHeaders(), snap)
}

// PullFromHub downloads the hub's snapshot.
func (c *Client) PullFromHub(ctx context.Context) (Snapshot, error) {
	if c.cfg.HubURL == "" || c.cfg.HubToken == "" {
		return Snapshot{}, ErrHubNotConfigured
	}
	return c.getSnapshot(ctx, c.cfg.HubURL+"/api/v1/pull", c.hubHeaders())
}

func (c *Client) mirrorHeaders() http.Header {
	h := http.Header{}
	if c.cfg.APIKey != "" {
		h.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return h
}

func (c *Client) hubHeaders() http.Header {
	h := http.Header{}
	h.Set("X-Hub-Token", c.cfg.HubToken)
	return h
}

func (c *Client) postJSON(ctx context.Context, url string, headers http.Header, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = headers.Clone()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sync: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sync: remote returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func (c *Client) getSnapshot(ctx context.Context, url string, headers http.Header) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Snapshot{}, err
	}
	req.Header = headers.Clone()

	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sync: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Snapshot{}, fmt.Errorf("sync: remote returned %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("sync: decode snapshot: %w", err)
	}
	if snap.Students == nil {
		return Snapshot{}, ErrEmptySnapshot
	}
	return snap, nil
}
