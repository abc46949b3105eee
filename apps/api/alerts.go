package main

import (
	"log/slog"
	"sync"
	"time"

	"complaintmap/libs/notice"
)

// sourceHealth counts consecutive fetch failures and mails an alert when
// they reach the threshold, then once more when the source recovers.
type sourceHealth struct {
	mu        sync.Mutex
	source    string
	threshold int
	notifier  *notice.Notifier
	log       *slog.Logger
	now       func() time.Time

	failures int
	since    time.Time
	lastErr  string
	lastOK   time.Time
	alerted  bool
}

type sourceStatus struct {
	Source              string     `json:"source"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FailingSince        *time.Time `json:"failing_since,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
}

func newSourceHealth(source string, threshold int, notifier *notice.Notifier, logger *slog.Logger) *sourceHealth {
	if threshold <= 0 {
		threshold = 3
	}
	return &sourceHealth{
		source:    source,
		threshold: threshold,
		notifier:  notifier,
		log:       logger,
		now:       time.Now,
	}
}

func (h *sourceHealth) record(err error) {
	if alert, ok := h.update(err); ok {
		h.send(alert)
	}
}

// update applies one fetch outcome and returns the alert it triggers, if any.
func (h *sourceHealth) update(err error) (notice.Alert, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now().UTC()
	if err == nil {
		alert := notice.Alert{Source: h.source, Failures: h.failures, Since: h.since, Recovered: true}
		alerted := h.alerted
		h.failures = 0
		h.since = time.Time{}
		h.lastErr = ""
		h.alerted = false
		h.lastOK = now
		return alert, alerted
	}

	if h.failures == 0 {
		h.since = now
	}
	h.failures++
	h.lastErr = err.Error()
	if h.failures >= h.threshold && !h.alerted {
		h.alerted = true
		return notice.Alert{Source: h.source, Failures: h.failures, LastError: h.lastErr, Since: h.since}, true
	}
	return notice.Alert{}, false
}

func (h *sourceHealth) send(alert notice.Alert) {
	if !h.notifier.Enabled() {
		h.log.Warn("source alert not sent: no recipients", "source", alert.Source, "failures", alert.Failures, "recovered", alert.Recovered)
		return
	}
	result, err := h.notifier.Alert(alert)
	if err != nil {
		h.log.Error("source alert failed", "source", alert.Source, "err", err)
		return
	}
	h.log.Info("source alert sent",
		"source", alert.Source,
		"failures", alert.Failures,
		"recovered", alert.Recovered,
		"provider", h.notifier.ProviderName(),
		"message_id", result.ProviderMessageID,
	)
}

func (h *sourceHealth) status() sourceStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	status := sourceStatus{Source: h.source, ConsecutiveFailures: h.failures, LastError: h.lastErr}
	if !h.since.IsZero() {
		since := h.since
		status.FailingSince = &since
	}
	if !h.lastOK.IsZero() {
		lastOK := h.lastOK
		status.LastSuccess = &lastOK
	}
	return status
}
