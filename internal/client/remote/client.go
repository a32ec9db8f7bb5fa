// Package remote talks to the GitHub REST API, which serves as the task
// backend: issues in a per-user repository are the items.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/ato/internal/logger"
)

const (
	// DefaultBaseURL is the public GitHub API.
	DefaultBaseURL = "https://api.github.com"
	// DefaultRepoName is the repository that holds the items.
	DefaultRepoName = "ato-datastore"

	apiVersion = "2022-11-28"
)

// TokenSource supplies the bearer credential and is told when the remote
// rejects it.
type TokenSource interface {
	// Token returns the current credential, or "" when logged out.
	Token() string
	// Invalidate drops the stored credential. It is called before an
	// AuthError is returned for a 401 response.
	Invalidate()
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
	Logger     *zap.Logger
	// Now is used to compute secondary rate-limit reset times.
	Now func() time.Time
}

// Client is an authenticated GitHub API client.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *zap.Logger
	now     func() time.Time
}

// NewClient builds a Client from cfg, filling defaults.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		tokens:  cfg.Tokens,
		log:     logger.OrNop(cfg.Logger).Named("remote"),
		now:     cfg.Now,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = NewHTTPClient(30 * time.Second)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// do sends an authenticated request and classifies transport, auth and
// rate-limit failures. Other statuses are left to the caller.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token := ""
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	if token == "" {
		return nil, &AuthError{Msg: "not authenticated"}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, &NetworkError{Err: err}
	}
	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		if c.tokens != nil {
			c.tokens.Invalidate()
		}
		return nil, &AuthError{Msg: "token expired or revoked"}
	}

	if rl := c.rateLimit(resp); rl != nil {
		drain(resp)
		return nil, rl
	}

	return resp, nil
}

// rateLimit classifies 403/429 responses that carry an exhausted quota or a
// Retry-After hint.
func (c *Client) rateLimit(resp *http.Response) *RateLimitError {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		reset, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
		return &RateLimitError{ResetAt: time.Unix(reset, 0)}
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		secs, err := strconv.Atoi(ra)
		if err != nil {
			secs = 60
		}
		return &RateLimitError{ResetAt: c.now().Add(time.Duration(secs) * time.Second)}
	}
	return nil
}

// decode reads a 2xx JSON body into v, or turns any other status into an
// APIError. A body cut off mid-transfer is a NetworkError.
func decode(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.EOF):
			return fmt.Errorf("decode response: %w", err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		}
		return &NetworkError{Err: err}
	}
	return nil
}

func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = string(raw)
	}
	return &APIError{StatusCode: resp.StatusCode, Body: body}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
