// Package api provides the HTTP client for the remote PedidoList API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/pedidolist/backend/internal/errors"
	"github.com/pedidolist/backend/internal/models"
)

// Client talks REST to the remote API. Every call carries a bearer
// credential, a bounded timeout, and on create an idempotency key (the
// entity's local UUID) so a replayed create after a lost response yields
// one server-side record, not two. That deduplication is a documented
// requirement on the server, not something this client can enforce alone.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
}

// NewClient creates a Client for baseURL. timeout bounds each request so a
// hung call cannot stall the drain loop.
func NewClient(baseURL string, timeout time.Duration, tokens TokenProvider) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

func kindPath(kind models.EntityKind) (string, error) {
	switch kind {
	case models.KindOrder:
		return "orders", nil
	case models.KindProduct:
		return "products", nil
	default:
		return "", apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity kind: %s", kind))
	}
}

// Create submits a new entity. The payload carries the local UUID as
// client_id; the same value goes in the Idempotency-Key header.
func (c *Client) Create(ctx context.Context, e models.Entity) (models.Entity, error) {
	path, err := kindPath(e.Kind())
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, http.MethodPost, fmt.Sprintf("%s/v1/%s", c.baseURL, path), e)
}

// Update submits changed fields for an entity the server already knows.
// The current version and timestamp ride along so the server can detect
// staleness itself and answer 409.
func (c *Client) Update(ctx context.Context, e models.Entity) (models.Entity, error) {
	path, err := kindPath(e.Kind())
	if err != nil {
		return nil, err
	}
	serverID := e.Meta().ServerID
	if serverID == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "update requires a server id")
	}
	return c.submit(ctx, http.MethodPut, fmt.Sprintf("%s/v1/%s/%s", c.baseURL, path, serverID), e)
}

// Delete removes an entity on the server. A 404 is treated as success so a
// replayed delete after a lost response converges.
func (c *Client) Delete(ctx context.Context, kind models.EntityKind, serverID string, version int) error {
	path, err := kindPath(kind)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodDelete,
		fmt.Sprintf("%s/v1/%s/%s", c.baseURL, path, serverID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Entity-Version", strconv.Itoa(version))

	resp, err := c.http.Do(req)
	if err != nil {
		return transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return statusErr(resp)
}

// Fetch retrieves the canonical server record for conflict comparison.
func (c *Client) Fetch(ctx context.Context, kind models.EntityKind, serverID string) (models.Entity, error) {
	path, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/%s/%s", c.baseURL, path, serverID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusErr(resp)
	}
	return decodeEntity(kind, resp.Body)
}

func (c *Client) submit(ctx context.Context, method, url string, e models.Entity) (models.Entity, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode entity", err)
	}

	req, err := c.newRequest(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", e.Meta().LocalID.String())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusErr(resp)
	}
	return decodeEntity(e.Kind(), resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// decodeEntity decodes a canonical server record (server id, version,
// timestamp plus the domain payload) into the concrete type for kind.
func decodeEntity(kind models.EntityKind, r io.Reader) (models.Entity, error) {
	var e models.Entity
	switch kind {
	case models.KindOrder:
		e = &models.Order{}
	case models.KindProduct:
		e = &models.Product{}
	default:
		return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity kind: %s", kind))
	}
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncFailed, "failed to decode server record", err)
	}
	e.Meta().SyncStatus = models.SyncStatusSynced
	return e, nil
}

// transportErr classifies a network-level failure.
func transportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.ErrSyncTimeout, "request timed out", err)
	}
	var ue interface{ Timeout() bool }
	if errors.As(err, &ue) && ue.Timeout() {
		return apperrors.Wrap(apperrors.ErrSyncTimeout, "request timed out", err)
	}
	return apperrors.Wrap(apperrors.ErrSyncUnavailable, "network failure", err)
}

// statusErr classifies an HTTP error response into the sync taxonomy.
func statusErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))

	switch {
	case resp.StatusCode == http.StatusConflict:
		return apperrors.New(apperrors.ErrSyncConflict, msg)
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.New(apperrors.ErrSyncUnauthorized, msg)
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return apperrors.New(apperrors.ErrSyncRejected, msg)
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.New(apperrors.ErrNotFound, msg)
	default:
		return apperrors.New(apperrors.ErrSyncUnavailable, msg)
	}
}
