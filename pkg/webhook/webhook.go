// Package webhook posts enforcement events to HTTP endpoints, such as a
// fleet management service tracking who deferred and who is overdue.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/nudge-project/nudge/pkg/model"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// DefaultBackoff retries a failed delivery three times.
var DefaultBackoff = wait.Backoff{
	Duration: 500 * time.Millisecond,
	Factor:   2,
	Jitter:   0.1,
	Steps:    4,
}

// Payload is the JSON body posted for each event.
type Payload struct {
	ID        string             `json:"id"`
	Event     model.EventType    `json:"event"`
	Timestamp string             `json:"timestamp"`
	Timeline  string             `json:"timeline,omitempty"`
	Mode      model.Mode         `json:"mode,omitempty"`
	Kind      model.DeferralKind `json:"kind,omitempty"`
	Count     int                `json:"count,omitempty"`
	Detail    string             `json:"detail,omitempty"`
	Host      string             `json:"host,omitempty"`
}

// Hook is one endpoint. An empty Events list, or "*", matches every event.
type Hook struct {
	URL     string
	Secret  string
	Events  []model.EventType
	Timeout time.Duration
}

// Matches reports whether the hook wants events of type t.
func (h Hook) Matches(t model.EventType) bool {
	if len(h.Events) == 0 {
		return true
	}
	for _, e := range h.Events {
		if e == t || e == "*" {
			return true
		}
	}
	return false
}

// Client delivers events to hooks.
type Client struct {
	hooks   []Hook
	http    *http.Client
	backoff wait.Backoff
	host    string
}

// NewClient returns a Client. Zero backoff Steps uses DefaultBackoff; host
// is reported in every payload.
func NewClient(hooks []Hook, backoff wait.Backoff, host string) *Client {
	if backoff.Steps == 0 {
		backoff = DefaultBackoff
	}
	return &Client{
		hooks:   hooks,
		http:    &http.Client{},
		backoff: backoff,
		host:    host,
	}
}

// Send posts ev to every matching hook and returns the joined failures.
// Every hook and retry sees the same delivery ID.
func (c *Client) Send(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(Payload{
		ID:        uuid.NewString(),
		Event:     ev.Type,
		Timestamp: ev.At.UTC().Format(time.RFC3339),
		Timeline:  ev.Timeline,
		Mode:      ev.Mode,
		Kind:      ev.Kind,
		Count:     ev.Count,
		Detail:    ev.Detail,
		Host:      c.host,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var errs []error
	for _, hook := range c.hooks {
		if !hook.Matches(ev.Type) {
			continue
		}
		if err := c.deliver(ctx, hook, ev.Type, payload); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", hook.URL, err))
		}
	}
	return errors.Join(errs...)
}

// deliver retries network errors and 5xx/429 responses. Other 4xx
// responses fail immediately.
func (c *Client) deliver(ctx context.Context, hook Hook, t model.EventType, payload []byte) error {
	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, c.backoff, func(ctx context.Context) (bool, error) {
		retry, err := c.post(ctx, hook, t, payload)
		if err == nil {
			return true, nil
		}
		lastErr = err
		if !retry {
			return false, err
		}
		return false, nil
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

func (c *Client) post(ctx context.Context, hook Hook, t model.EventType, payload []byte) (retry bool, err error) {
	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "nudge-webhook/1.0")
	req.Header.Set("X-Nudge-Event", string(t))
	if hook.Secret != "" {
		req.Header.Set("X-Nudge-Signature", Sign(payload, hook.Secret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return true, fmt.Errorf("http request: %w", err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return false, fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}

// Sign returns the X-Nudge-Signature value for payload: "sha256=" and the
// hex HMAC-SHA256 under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
