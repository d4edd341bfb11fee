package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// heightMetric is the prometheus gauge the node exposes for its current head.
const heightMetric = "computechain_block_height"

// HTTPClient talks to the chain node's read API. Requests rotate across the
// configured endpoints with a per-endpoint circuit breaker and a shared
// rate limiter. All calls are read-only and safe to retry.
type HTTPClient struct {
	endpoints []string
	client    *http.Client
	limiter   *rate.Limiter

	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}

	return &HTTPClient{
		endpoints:        dedup(o.Endpoints),
		client:           client,
		limiter:          rate.NewLimiter(rate.Limit(o.RPS), o.Burst),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
}

func dedup(ss []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}

func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep] = 0
}

// do performs a GET against the first healthy endpoint and returns the
// response body. A 404 maps to ErrNotFound; network errors, 5xx responses
// and an exhausted endpoint list map to ErrUnavailable.
func (c *HTTPClient) do(ctx context.Context, path string) ([]byte, error) {
	if len(c.endpoints) == 0 {
		return nil, fmt.Errorf("%w: no endpoints configured", ErrUnavailable)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < len(c.endpoints); i++ {
		ep := c.endpoints[i]
		if c.isOpen(ep) {
			continue
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, ep+path, nil)
		if reqErr != nil {
			return nil, reqErr
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			c.noteSuccess(ep)
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server %d", resp.StatusCode)
			c.noteFailure(ep)
			resp.Body.Close()
			continue
		case resp.StatusCode >= 300:
			lastErr = fmt.Errorf("http %d", resp.StatusCode)
			resp.Body.Close()
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		c.noteSuccess(ep)
		slog.Debug("rpc", "path", path, "len", len(body))
		return body, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all endpoints open")
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *HTTPClient) doJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w (body: %s)", path, err, string(body[:min(200, len(body))]))
	}
	return nil
}

// ChainHead returns the node's current block height, parsed from the node's
// prometheus metrics endpoint.
func (c *HTTPClient) ChainHead(ctx context.Context) (uint64, error) {
	body, err := c.do(ctx, "/metrics")
	if err != nil {
		return 0, err
	}

	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, heightMetric+" ") {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, heightMetric)), 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", heightMetric, err)
		}
		return uint64(v), nil
	}
	return 0, fmt.Errorf("%w: %s not exposed", ErrUnavailable, heightMetric)
}

// BlockByHeight fetches the block at the given height with its transactions.
func (c *HTTPClient) BlockByHeight(ctx context.Context, height uint64) (*BlockResult, error) {
	var resp BlockResult
	if err := c.doJSON(ctx, fmt.Sprintf("/block/%d", height), &resp); err != nil {
		return nil, err
	}
	if resp.Header.Height != height {
		return nil, fmt.Errorf("%w: requested height %d, got %d", ErrNotFound, height, resp.Header.Height)
	}
	return &resp, nil
}

// LatestBlock fetches the node's current tip block.
func (c *HTTPClient) LatestBlock(ctx context.Context) (*BlockResult, error) {
	var resp BlockResult
	if err := c.doJSON(ctx, "/block/latest", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Validators fetches the current validator set.
func (c *HTTPClient) Validators(ctx context.Context) ([]Validator, error) {
	var resp []Validator
	if err := c.doJSON(ctx, "/validators", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
