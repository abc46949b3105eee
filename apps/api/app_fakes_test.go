package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"complaintmap/libs/mapview"
	"complaintmap/libs/notice"
)

type fakeSource struct {
	mu      sync.Mutex
	records []mapview.Record
	err     error
	calls   int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchComplaints(ctx context.Context) ([]mapview.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]mapview.Record(nil), f.records...), nil
}

func (f *fakeSource) set(records []mapview.Record, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
	f.err = err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingProvider struct {
	mu   sync.Mutex
	sent []notice.Message
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Send(msg notice.Message) (notice.SendResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return notice.SendResult{ProviderMessageID: "rec"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *Config {
	return &Config{
		Addr:                  ":0",
		Env:                   "test",
		PublicBaseURL:         "https://map.example.org",
		ComplaintsSource:      sourceHTTP,
		SessionTTL:            time.Minute,
		MapCenterLat:          18.5204,
		MapCenterLng:          73.8567,
		MapDefaultZoom:        12,
		MapMaxZoom:            20,
		NavigateZoom:          17,
		ClusterRadiusPx:       80,
		RevealTimeout:         200 * time.Millisecond,
		NavigateMaxAttempts:   3,
		AlertFailureThreshold: 2,
	}
}

func newTestApp(t *testing.T, source ComplaintSource) (*App, *recordingProvider) {
	t.Helper()
	cfg := testConfig()
	provider := &recordingProvider{}
	notifier := notice.New(provider, "alerts@example.org", []string{"ops@example.org"})
	app := newApp(cfg, nil, testLogger(), notifier)
	app.source = source
	app.health = newSourceHealth(source.Name(), cfg.AlertFailureThreshold, notifier, app.log)
	return app, provider
}

func complaint(id, kind, status, urgency string, lat, lng float64, createdAt string) mapview.Record {
	parsed, _ := mapview.ParseTimestamp(createdAt)
	return mapview.Record{
		ID:           id,
		Type:         kind,
		Status:       status,
		Urgency:      urgency,
		Latitude:     lat,
		Longitude:    lng,
		Description:  "complaint " + id,
		ReporterName: "reporter " + id,
		CreatedAt:    parsed,
		CreatedAtRaw: createdAt,
	}
}

func sampleComplaints() []mapview.Record {
	return []mapview.Record{
		complaint("1", "Pothole", "Pending", "High", 18.52, 73.85, "2025-03-02 09:00:00"),
		complaint("2", "Pothole", "Pending", "Low", 18.52, 73.85, "2025-03-01 09:00:00"),
		complaint("3", "Garbage", "Resolved", "Medium", 18.53, 73.86, "2025-02-28 09:00:00"),
		complaint("4", "Garbage", "Pending", "Low", 0, 0, "2025-03-03 09:00:00"),
	}
}
