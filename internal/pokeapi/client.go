// Package pokeapi is the remote catalog client. Calls are rate limited per
// endpoint group and transient failures are retried with exponential backoff.
package pokeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/domain"
	"github.com/pokepi/pokepi-server/internal/ratelimit"
)

const (
	// Endpoint groups, used as rate limiter keys.
	groupPokemon = "pokemon"
	groupType    = "type"

	defaultTimeout    = 15 * time.Second
	defaultRPS        = 10.0
	defaultBurst      = 20
	defaultMaxRetries = 3

	// Upper bound on the type listing; upstream has about twenty types.
	typeListLimit = 100

	// Largest response body read. A full name listing is well under 1 MiB.
	maxResponseBytes = 8 << 20

	userAgent = "PokePI/1.0"
)

// retryPolicy bounds the exponential backoff applied to transient failures.
type retryPolicy struct {
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// Client is a rate-limited PokeAPI client.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	limiter *ratelimit.KeyedRateLimiter
	retry   retryPolicy
	maxBody int64
	logger  *slog.Logger
}

// New creates a client for the API rooted at cfg.BaseURL. A zero timeout or
// rate falls back to the package default; a negative MaxRetries does too.
func New(cfg config.PokeAPIConfig, logger *slog.Logger) (*Client, error) {
	raw := cfg.BaseURL
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = defaultMaxRetries
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: base,
		limiter: ratelimit.New(rps, burst),
		maxBody: maxResponseBytes,
		retry: retryPolicy{
			maxRetries:      uint64(retries),
			initialInterval: 500 * time.Millisecond,
			maxInterval:     5 * time.Second,
		},
		logger: logger,
	}, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// ListPokemon returns one page of the catalog listing.
func (c *Client) ListPokemon(ctx context.Context, limit, offset int) (*domain.ListPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var page domain.ListPage
	if err := c.getJSON(ctx, groupPokemon, "pokemon", query, &page); err != nil {
		return nil, c.wrap(ctx, "listPokemon", fmt.Sprintf("limit=%d offset=%d", limit, offset), err)
	}
	return &page, nil
}

// GetPokemon returns the full detail record for id. Locally-owned fields of
// the result are zero.
func (c *Client) GetPokemon(ctx context.Context, id int) (*domain.Pokemon, error) {
	key := strconv.Itoa(id)
	if id <= 0 {
		return nil, wrapError("getPokemon", key, ErrBadRequest)
	}

	var p domain.Pokemon
	if err := c.getJSON(ctx, groupPokemon, "pokemon/"+key, nil, &p); err != nil {
		return nil, c.wrap(ctx, "getPokemon", key, err)
	}
	if p.ID != id {
		return nil, wrapError("getPokemon", key, fmt.Errorf("%w: got id %d", ErrDecode, p.ID))
	}
	return &p, nil
}

// GetType returns a type category with its member list.
func (c *Client) GetType(ctx context.Context, name string) (*domain.TypeCategory, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, wrapError("getType", name, ErrBadRequest)
	}

	var cat domain.TypeCategory
	if err := c.getJSON(ctx, groupType, "type/"+name, nil, &cat); err != nil {
		return nil, c.wrap(ctx, "getType", name, err)
	}
	return &cat, nil
}

// ListTypes returns every type category reference.
func (c *Client) ListTypes(ctx context.Context) (*domain.ListPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(typeListLimit))

	var page domain.ListPage
	if err := c.getJSON(ctx, groupType, "type", query, &page); err != nil {
		return nil, c.wrap(ctx, "listTypes", "", err)
	}
	return &page, nil
}

// wrap attaches operation context. Caller cancellation is returned as is so
// it is never mistaken for a network failure.
func (c *Client) wrap(ctx context.Context, op, resource string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return wrapError(op, resource, err)
}

func (c *Client) getJSON(ctx context.Context, group, path string, query url.Values, dest any) error {
	body, err := c.doRequestWithRetry(ctx, group, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// doRequestWithRetry retries rate limiting, server errors and transport
// errors. Other statuses fail at once.
func (c *Client) doRequestWithRetry(ctx context.Context, group, path string, query url.Values) ([]byte, error) {
	var body []byte
	operation := func() error {
		b, err := c.doRequest(ctx, group, path, query)
		if err != nil {
			if !retryable(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.retry.initialInterval),
		backoff.WithMaxInterval(c.retry.maxInterval),
	), c.retry.maxRetries)

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying pokeapi request", "path", path, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

var errUnexpectedStatus = errors.New("pokeapi: unexpected status")

func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrTooLarge),
		errors.Is(err, errUnexpectedStatus):
		return false
	default:
		return true
	}
}

// doRequest executes one HTTP request with rate limiting.
func (c *Client) doRequest(ctx context.Context, group, path string, query url.Values) ([]byte, error) {
	// Wait for rate limit
	if err := c.limiter.Wait(ctx, group); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("pokeapi request", "group", group, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.maxBody)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusBadRequest:
		return nil, ErrBadRequest
	default:
		if resp.StatusCode >= 500 {
			return nil, ErrServer
		}
		return nil, fmt.Errorf("%w %d: %s", errUnexpectedStatus, resp.StatusCode, string(body))
	}
}
