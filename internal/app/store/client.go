/*
Package store is the HTTP client for the storefront's backend collaborators.

The sync core never talks to a database directly; chat history, authoritative
unread counts, mark-as-read, and notification queries are request/response
operations against the storefront API, consumed here as black boxes. Responses
use the platform's JSON envelope ({code, message, data}).
*/
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"storesync/internal/pkg/errs"
	"storesync/internal/pkg/logx"

	"github.com/rs/zerolog"
)

const defaultTimeout = 10 * time.Second

// Client calls the storefront collaborator API with a bearer credential.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient constructs a collaborator API client.
// baseURL is the API root without a trailing slash; timeout bounds every call
// and falls back to a default when zero.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logx.Component("store"),
	}
}

// envelope is the platform's standard JSON response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// do executes one request and unwraps the response envelope into dst.
// Network failures map to ErrCollaborator; non-2xx statuses and non-zero
// envelope codes map to ErrCollaboratorStatus.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, dst any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errs.NewError(errs.ErrUnknown, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return errs.NewError(errs.ErrUnknown, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("Collaborator request failed.")
		return errs.NewError(errs.ErrCollaborator)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		c.logger.Warn().
			Int("status", res.StatusCode).
			Str("path", path).
			Msg("Collaborator answered with non-success status.")
		return errs.NewError(errs.ErrCollaboratorStatus, res.Status)
	}

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("Collaborator response envelope unreadable.")
		return errs.NewError(errs.ErrCollaborator)
	}

	if env.Code != 0 {
		c.logger.Warn().
			Int("code", env.Code).
			Str("path", path).
			Str("message", env.Message).
			Msg("Collaborator answered with business error.")
		return errs.NewError(errs.ErrCollaboratorStatus, fmt.Sprintf("code %d", env.Code))
	}

	if dst != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			return errs.NewError(errs.ErrCollaborator)
		}
	}

	return nil
}

// get is a convenience wrapper for GET requests.
func (c *Client) get(ctx context.Context, path string, query url.Values, dst any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, dst)
}

// post is a convenience wrapper for POST requests.
func (c *Client) post(ctx context.Context, path string, body any, dst any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, dst)
}

// itoa keeps query building readable.
func itoa(n int) string { return strconv.Itoa(n) }
