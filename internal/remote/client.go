// Package remote is the HTTP client for the hosted household backend. The
// sync core only talks to it from the replay worker and the connectivity
// probe; all other access to the backend belongs to the UI layer.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"domovik/internal/models"
	"domovik/internal/syncerr"

	"github.com/rs/zerolog"
)

type Client struct {
	baseURL     string
	householdID string
	token       string
	httpClient  *http.Client
	logger      *zerolog.Logger
}

func NewClient(baseURL, householdID, token string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		householdID: householdID,
		token:       token,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// permanentError marks replay failures that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether a replay error is not worth retrying.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

func collectionFor(entityType string) string {
	switch entityType {
	case models.EntityTask:
		return "tasks"
	case models.EntityAsset:
		return "assets"
	case models.EntityBooking:
		return "bookings"
	}
	return ""
}

// Replay submits a queued mutation to the backend. The mutation id doubles as
// an idempotency key so a retried replay cannot apply twice.
func (c *Client) Replay(ctx context.Context, m *models.PendingMutation) error {
	collection := collectionFor(m.EntityType)
	if collection == "" {
		return &permanentError{err: fmt.Errorf("unknown entity type %q", m.EntityType)}
	}

	url := fmt.Sprintf("%s/api/v1/households/%s/%s", c.baseURL, c.householdID, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(m.Payload))
	if err != nil {
		return syncerr.New(syncerr.KindReplayFailure, "remote.Replay", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", m.ID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syncerr.New(syncerr.KindReplayFailure, "remote.Replay", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	// 4xx (except 408 and 429) means the payload itself is rejected;
	// replaying it again would fail the same way.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return &permanentError{err: syncerr.New(syncerr.KindReplayFailure, "remote.Replay", cause)}
	}

	return syncerr.New(syncerr.KindReplayFailure, "remote.Replay", cause)
}

// Health probes backend reachability for the connectivity monitor.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unhealthy: %d", resp.StatusCode)
	}
	return nil
}
