// Package statestore implements a typed HTTP client for the external state
// store: events ingest, agent status updates, metadata sync,
// and notification polling/delivery bookkeeping.
package statestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corvidlabs/missionbridge/internal/domain"
)

const (
	pathIngestEvents         = "/events/ingest"
	pathUpdateAgentStatuses  = "/agents/update-status"
	pathSyncAgentMetadata    = "/agents/metadata"
	pathNotificationsPending = "/notifications/pending"
	pathMarkDelivered        = "/notifications/mark-delivered"
	pathRecordAttempt        = "/notifications/attempt"

	maxErrorBodyBytes = 2048
)

// RemoteError is returned when the state store answers with a non-2xx
// status code. It carries the status and a truncated response body so
// callers can log useful context without retaining unbounded payloads.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("state store returned %d: %s", e.StatusCode, e.Body)
}

// Client is a typed HTTP client for the state store's six endpoints
// (events, statuses, metadata, and three notification endpoints).
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// New creates a Client for the given base URL and bearer secret. baseURL is
// normalized: trailing slash stripped, ".cloud" rewritten to
// ".site".
func New(baseURL, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: normalizeBaseURL(baseURL),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}
}

func normalizeBaseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	if strings.Contains(u, ".cloud") {
		u = strings.Replace(u, ".cloud", ".site", 1)
	}
	return u
}

// PendingNotification mirrors the shape returned by /notifications/pending.
type PendingNotification struct {
	ID            string `json:"id"`
	RecipientID   string `json:"recipientId"`
	RecipientType string `json:"recipientType"`
	Message       string `json:"message"`
	LastAttemptAt *int64 `json:"lastAttemptAt,omitempty"`
}

// IngestEvents posts a batch of BridgeEvents. An empty batch is a no-op.
func (c *Client) IngestEvents(ctx context.Context, events []domain.BridgeEvent) error {
	if len(events) == 0 {
		return nil
	}
	return c.post(ctx, pathIngestEvents, events, nil)
}

// UpdateAgentStatuses posts a batch of AgentStatusUpdate. An empty batch is
// a no-op.
func (c *Client) UpdateAgentStatuses(ctx context.Context, updates []domain.AgentStatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return c.post(ctx, pathUpdateAgentStatuses, updates, nil)
}

// SyncAgentMetadata posts a batch of opaque metadata records. An empty
// batch is a no-op.
func (c *Client) SyncAgentMetadata(ctx context.Context, records []map[string]any) error {
	if len(records) == 0 {
		return nil
	}
	return c.post(ctx, pathSyncAgentMetadata, records, nil)
}

// ListPendingNotificationsParams are the optional query parameters for
// ListPendingNotifications.
type ListPendingNotificationsParams struct {
	Limit         int    `json:"limit,omitempty"`
	RecipientType string `json:"recipientType,omitempty"`
}

// ListPendingNotifications fetches pending notifications for delivery.
func (c *Client) ListPendingNotifications(ctx context.Context, params ListPendingNotificationsParams) ([]PendingNotification, error) {
	var result []PendingNotification
	if err := c.post(ctx, pathNotificationsPending, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkNotificationDelivered marks a notification as delivered. deliveredAt
// is formatted as epoch milliseconds when non-nil.
func (c *Client) MarkNotificationDelivered(ctx context.Context, id string, deliveredAt *time.Time) error {
	body := map[string]any{"notificationId": id}
	if deliveredAt != nil {
		body["deliveredAt"] = deliveredAt.UnixMilli()
	}
	return c.post(ctx, pathMarkDelivered, body, nil)
}

// RecordNotificationAttempt records a failed (or attempted) delivery.
func (c *Client) RecordNotificationAttempt(ctx context.Context, id string, deliveryErr string) error {
	body := map[string]any{"notificationId": id}
	if deliveryErr != "" {
		body["error"] = deliveryErr
	}
	return c.post(ctx, pathRecordAttempt, body, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &RemoteError{StatusCode: resp.StatusCode, Body: string(limited)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
