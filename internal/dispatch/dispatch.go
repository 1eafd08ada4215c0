// Package dispatch sends analysis requests to the external agent. Each request
// carries the callback address and the correlation metadata the agent must
// echo back.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yanbot/internal/capture"
	"github.com/yanbot/internal/metrics"
	"github.com/yanbot/internal/store"
	"github.com/yanbot/internal/tasks"
)

// DefaultTimeout bounds a single dispatch request.
const DefaultTimeout = 20 * time.Second

var (
	// ErrUnknownTaskKind means no endpoint is configured for the kind.
	ErrUnknownTaskKind = errors.New("no dispatch endpoint for task kind")
	// ErrDispatchFailed covers transport errors, timeouts and non-2xx replies.
	ErrDispatchFailed = errors.New("dispatch failed")
)

// CallbackMetadata is echoed back verbatim by the agent.
type CallbackMetadata struct {
	JobID    string `json:"job_id"`
	UserID   int64  `json:"user_id"`
	TaskKind string `json:"task_kind"`
}

// Request is the JSON body sent to a task endpoint.
type Request struct {
	XHandle          string           `json:"x_handle"`
	FarcasterID      int64            `json:"farcaster_id"`
	ViewerID         int64            `json:"viewer_id"`
	CallbackURL      string           `json:"callback_url"`
	CallbackMetadata CallbackMetadata `json:"callback_metadata"`
}

// Config holds the endpoint map and callback address.
type Config struct {
	Endpoints   map[string]string
	CallbackURL string
	Timeout     time.Duration
}

// Client posts task requests to the agent
type Client struct {
	endpoints   map[tasks.Kind]string
	callbackURL string
	http        *http.Client
}

// NewClient builds a client. Endpoint keys are task wire names; unknown keys
// are rejected so typos surface at startup.
func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	endpoints := make(map[tasks.Kind]string, len(cfg.Endpoints))
	for name, url := range cfg.Endpoints {
		kind, err := tasks.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("dispatch endpoint %q: %w", name, err)
		}
		if url = strings.TrimSpace(url); url != "" {
			endpoints[kind] = url
		}
	}

	return &Client{
		endpoints:   endpoints,
		callbackURL: cfg.CallbackURL,
		http:        &http.Client{Timeout: timeout},
	}, nil
}

// Dispatch sends one task request. A failure leaves the job pending; the
// caller decides whether the user hears about it.
func (c *Client) Dispatch(ctx context.Context, kind tasks.Kind, user *store.User, jobID string) error {
	endpoint, ok := c.endpoints[kind]
	if !ok {
		metrics.IncDispatch(kind.String(), "unknown_kind")
		return fmt.Errorf("%w: %s", ErrUnknownTaskKind, kind)
	}

	payload := Request{
		XHandle:     user.XHandle,
		FarcasterID: user.FarcasterID,
		ViewerID:    user.FarcasterID,
		CallbackURL: c.callbackURL,
		CallbackMetadata: CallbackMetadata{
			JobID:    jobID,
			UserID:   user.ID,
			TaskKind: kind.String(),
		},
	}
	capture.WriteJSON("dispatch-"+kind.String(), payload)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrDispatchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.IncDispatch(kind.String(), "error")
		log.Error().Err(err).
			Str("job_id", jobID).
			Str("task_kind", kind.String()).
			Dur("elapsed", time.Since(start)).
			Msg("Dispatch request failed")
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.IncDispatch(kind.String(), "rejected")
		log.Error().
			Str("job_id", jobID).
			Str("task_kind", kind.String()).
			Int("status", resp.StatusCode).
			Str("body", strings.TrimSpace(string(snippet))).
			Msg("Dispatch endpoint returned non-2xx")
		return fmt.Errorf("%w: endpoint returned status %d", ErrDispatchFailed, resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	metrics.IncDispatch(kind.String(), "ok")
	log.Info().
		Str("job_id", jobID).
		Int64("user_id", user.ID).
		Str("task_kind", kind.String()).
		Dur("elapsed", time.Since(start)).
		Msg("Task dispatched")

	return nil
}
