package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/liveview-io/liveview/shared/pkg/logger"
)

// httpClient is a small retrying wrapper tailored to provider APIs,
// grounded on original_source/backend/shared/utils/http_client.py:
// 429 is retried with Retry-After honored, 5xx is retried with linear
// backoff, 4xx (other than 429) fails fast.
type httpClient struct {
	provider   string
	baseURL    string
	apiKey     string
	headers    map[string]string
	maxRetries int
	http       *http.Client
	log        *logger.Logger
}

func newHTTPClient(provider, baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *httpClient {
	return &httpClient{
		provider:   provider,
		baseURL:    baseURL,
		apiKey:     apiKey,
		headers:    map[string]string{},
		maxRetries: 2,
		http:       &http.Client{Timeout: timeout},
		log:        log,
	}
}

// fetchResult carries the outcome the connectors translate into a
// ConnectorResult: body bytes on success, or an error tagging rate-limit
// separately so the caller can set ConnectorResult.RateLimited.
type fetchResult struct {
	Body        []byte
	RateLimited bool
}

func (c *httpClient) get(ctx context.Context, path string, query map[string]string) (fetchResult, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fetchResult{}, fmt.Errorf("build request: %w", err)
		}
		q := req.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			break
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			retryAfter := 2 * time.Second
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil {
					retryAfter = time.Duration(secs) * time.Second
				}
			}
			if attempt < c.maxRetries {
				c.log.Base().WithField("provider", c.provider).Warn("provider rate limited, retrying")
				select {
				case <-time.After(retryAfter):
				case <-ctx.Done():
					return fetchResult{}, ctx.Err()
				}
				continue
			}
			return fetchResult{RateLimited: true}, fmt.Errorf("provider %s rate limited", c.provider)
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("provider %s returned %d", c.provider, resp.StatusCode)
			if attempt < c.maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			break
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fetchResult{}, fmt.Errorf("provider %s returned %d (not retried)", c.provider, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fetchResult{}, fmt.Errorf("read body: %w", err)
		}
		return fetchResult{Body: body}, nil
	}

	return fetchResult{}, lastErr
}
