package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"complaintmap/libs/admintoken"
	"complaintmap/libs/mapview"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
)

const (
	sourceResponseLimit = 32 << 20
	sourceTokenLifetime = 5 * time.Minute
	sourceCacheKey      = "complaints"
)

var errSourceUnauthorized = errors.New("complaint source rejected credentials")

// ComplaintSource returns every complaint currently stored upstream.
type ComplaintSource interface {
	Name() string
	FetchComplaints(ctx context.Context) ([]mapview.Record, error)
}

// httpComplaintSource reads the admin complaints endpoint, authenticating
// with a short-lived HS256 token that carries admin_id.
type httpComplaintSource struct {
	url     string
	secret  []byte
	adminID string
	client  *http.Client
	now     func() time.Time
	retries uint64

	// retryInterval is the first wait between attempts on transient errors.
	retryInterval time.Duration
}

func newHTTPComplaintSource(cfg *Config, client *http.Client) *httpComplaintSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &httpComplaintSource{
		url:     cfg.ComplaintsURL,
		secret:  []byte(cfg.ComplaintsSigningSecret),
		adminID: cfg.ComplaintsAdminID,
		client:  client,
		now:     time.Now,
		retries: 2,

		retryInterval: 500 * time.Millisecond,
	}
}

func (s *httpComplaintSource) Name() string { return "http" }

func (s *httpComplaintSource) FetchComplaints(ctx context.Context) ([]mapview.Record, error) {
	var records []mapview.Record
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, s.retries), ctx)
	err := backoff.Retry(func() error {
		fetched, err := s.fetchOnce(ctx)
		if err != nil {
			return err
		}
		records = fetched
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *httpComplaintSource) fetchOnce(ctx context.Context) ([]mapview.Record, error) {
	token, err := admintoken.Sign(s.secret, s.adminID, s.now(), sourceTokenLifetime)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("fetch complaints: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, sourceResponseLimit))
	if err != nil {
		return nil, fmt.Errorf("read complaints response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", errSourceUnauthorized, resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("complaint source returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("complaint source returned status %d: %s", resp.StatusCode, snippet(body)))
	}

	records, err := mapview.DecodeRecords(body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode complaints: %w", err))
	}
	return records, nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

// postgresComplaintSource reads the complaints table directly.
type postgresComplaintSource struct {
	db *sql.DB
}

func (s *postgresComplaintSource) Name() string { return "postgres" }

func (s *postgresComplaintSource) FetchComplaints(ctx context.Context) ([]mapview.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text,
			COALESCE(fullname, ''),
			COALESCE(complaint_type, ''),
			COALESCE(description, ''),
			COALESCE(urgency, ''),
			COALESCE(latitude, ''),
			COALESCE(longitude, ''),
			created_at,
			COALESCE(image_url, ''),
			COALESCE(status, '')
		FROM complaints
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query complaints: %w", err)
	}
	defer rows.Close()

	records := make([]mapview.Record, 0)
	for rows.Next() {
		var (
			record    mapview.Record
			lat, lng  string
			createdAt sql.NullTime
		)
		if err := rows.Scan(
			&record.ID,
			&record.ReporterName,
			&record.Type,
			&record.Description,
			&record.Urgency,
			&lat,
			&lng,
			&createdAt,
			&record.ImageURL,
			&record.Status,
		); err != nil {
			return nil, fmt.Errorf("scan complaint: %w", err)
		}
		record.Latitude = mapview.ParseCoordinate(lat)
		record.Longitude = mapview.ParseCoordinate(lng)
		if createdAt.Valid {
			record.CreatedAt = createdAt.Time.UTC()
			record.CreatedAtRaw = createdAt.Time.Format("2006-01-02 15:04:05.999999")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate complaints: %w", err)
	}
	return records, nil
}

// cachedComplaintSource shares one upstream response between sessions for
// ttl. Failures are not cached.
type cachedComplaintSource struct {
	inner ComplaintSource
	cache *cache.Cache
}

func newCachedComplaintSource(inner ComplaintSource, ttl time.Duration) ComplaintSource {
	if ttl <= 0 {
		return inner
	}
	return &cachedComplaintSource{inner: inner, cache: cache.New(ttl, 2*ttl)}
}

func (s *cachedComplaintSource) Name() string { return s.inner.Name() }

func (s *cachedComplaintSource) FetchComplaints(ctx context.Context) ([]mapview.Record, error) {
	if cached, ok := s.cache.Get(sourceCacheKey); ok {
		return append([]mapview.Record(nil), cached.([]mapview.Record)...), nil
	}
	records, err := s.inner.FetchComplaints(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(sourceCacheKey, records)
	return append([]mapview.Record(nil), records...), nil
}

// Invalidate drops the cached response so the next fetch goes upstream.
func (s *cachedComplaintSource) Invalidate() {
	s.cache.Delete(sourceCacheKey)
}
