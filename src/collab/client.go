// Package collab talks to the session server's plain HTTP endpoints: session
// validation, listener login, track submission and the airhorn catalog.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

var (
	// ErrNoSessionID is returned when the server answers a login without an id.
	ErrNoSessionID = errors.New("server returned no session id")
	// ErrRejected is returned when a random-liked load answers 2xx with
	// success=false.
	ErrRejected = errors.New("request rejected by server")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Message extracts the server's "error" field when the body is JSON.
func (e *StatusError) Message() string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &body) == nil && body.Error != "" {
		return body.Error
	}
	return ""
}

// LoadResult is the outcome of a random-liked load.
type LoadResult struct {
	Success bool   `json:"success"`
	Added   int    `json:"added"`
	Error   string `json:"error,omitempty"`
}

// Client is a thin JSON client over fasthttp.
type Client struct {
	origin  string
	timeout time.Duration
	http    *fasthttp.Client
	logger  zerolog.Logger
}

// New creates a Client for the given API origin.
func New(origin string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		origin:  strings.TrimRight(origin, "/"),
		timeout: timeout,
		http: &fasthttp.Client{
			Name:                "jamctl",
			MaxIdleConnDuration: 30 * time.Second,
		},
		logger: logger.With().Str("component", "collab").Logger(),
	}
}

// ValidateSession reports whether the server still recognises sessionID.
func (c *Client) ValidateSession(ctx context.Context, sessionID string) (bool, error) {
	var out struct {
		LoggedIn bool `json:"loggedIn"`
	}
	path := "/api/session/" + url.PathEscape(sessionID)
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, nil, &out); err != nil {
		return false, err
	}
	return out.LoggedIn, nil
}

// ListenerLogin registers an offline listener and returns a fresh session id.
func (c *Client) ListenerLogin(ctx context.Context, name, email string) (string, error) {
	in := map[string]string{"name": name, "email": email}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, "/api/listener-login", in, nil, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", ErrNoSessionID
	}
	return out.SessionID, nil
}

// SubmitTrack asks the server to enqueue trackID on behalf of sessionID.
// Only transport failures and non-2xx answers are errors; a 2xx answer
// without success is logged and treated as accepted, since the queue
// broadcast is the source of truth.
func (c *Client) SubmitTrack(ctx context.Context, trackID, sessionID, accessToken string) error {
	in := map[string]string{"trackId": trackID, "sessionId": sessionID}
	headers := map[string]string{"spotify-access-token": accessToken}
	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, "/api/tracks", in, headers, &out); err != nil {
		return err
	}
	if !out.Success {
		c.logger.Warn().Str("track", trackID).Str("error", out.Error).Msg("track submission not confirmed")
	}
	return nil
}

// LoadRandomLiked asks the server to append random liked tracks from the
// master's library.
func (c *Client) LoadRandomLiked(ctx context.Context, sessionID string) (LoadResult, error) {
	in := map[string]string{"sessionId": sessionID}
	var out LoadResult
	if err := c.do(ctx, fasthttp.MethodPost, "/api/master-random-liked", in, nil, &out); err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			out.Error = se.Message()
		}
		return out, err
	}
	if !out.Success {
		if out.Error != "" {
			return out, fmt.Errorf("%w: %s", ErrRejected, out.Error)
		}
		return out, ErrRejected
	}
	return out, nil
}

// Airhorns lists the clip names the server can play.
func (c *Client) Airhorns(ctx context.Context) ([]string, error) {
	var out struct {
		Airhorns []string `json:"airhorns"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/api/airhorns", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Airhorns == nil {
		return []string{}, nil
	}
	return out.Airhorns, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, headers map[string]string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.origin + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	code := resp.StatusCode()
	c.logger.Debug().Str("method", method).Str("path", path).Int("status", code).Msg("response")
	if code < 200 || code > 299 {
		return &StatusError{Code: code, Body: string(resp.Body())}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
