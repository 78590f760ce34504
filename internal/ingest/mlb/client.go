// Package mlb is a client for the MLB Stats API: live game feeds, schedules
// and the sports and game-type reference lists.
package mlb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fortuna/diamond/internal/feed"
	"github.com/sirupsen/logrus"
)

const (
	BaseURL        = "https://statsapi.mlb.com"
	DefaultTimeout = 15 * time.Second
)

// Client issues GET requests against the Stats API. It is safe for concurrent
// use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// New creates a client. An empty baseURL selects the public API and a
// non-positive timeout selects DefaultTimeout.
func New(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// LiveFeedURL returns the live feed endpoint for a game.
func (c *Client) LiveFeedURL(gamePk int64) string {
	return fmt.Sprintf("%s/api/v1.1/game/%d/feed/live", c.baseURL, gamePk)
}

func (c *Client) endpointURL(endpoint string, query url.Values) string {
	u := fmt.Sprintf("%s/api/v1/%s", c.baseURL, endpoint)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// FetchLiveFeed fetches a game's live feed document. Numbers in the document
// are kept as json.Number.
func (c *Client) FetchLiveFeed(ctx context.Context, gamePk int64) (map[string]interface{}, error) {
	target := c.LiveFeedURL(gamePk)
	body, err := c.fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	doc, err := feed.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{URL: target, Err: fmt.Errorf("decoding response: %w", err)}
	}

	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil, &DataShapeError{URL: target, Key: "gamePk"}
	}
	if _, ok := obj["gamePk"]; !ok {
		return nil, &DataShapeError{URL: target, Key: "gamePk"}
	}
	return obj, nil
}

// fetch performs a GET and returns the body of a 200 response.
func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("url", target).Warn("[mlb-client] request failed")
		return nil, &TransportError{URL: target, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Debug("[mlb-client] closing response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.WithFields(logrus.Fields{
			"url":    target,
			"status": resp.StatusCode,
		}).Warn("[mlb-client] bad response code")
		return nil, &TransportError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: target, Err: fmt.Errorf("reading response: %w", err)}
	}

	c.logger.WithFields(logrus.Fields{
		"url":      target,
		"bytes":    len(body),
		"duration": time.Since(start),
	}).Debug("[mlb-client] ✓ fetched")
	return body, nil
}

// fetchObject fetches a JSON object and requires key at its top level. The
// object's values are returned undecoded.
func (c *Client) fetchObject(ctx context.Context, target, key string) (map[string]json.RawMessage, error) {
	body, err := c.fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &DataShapeError{URL: target, Key: key}
		}
		return nil, &TransportError{URL: target, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if raw, ok := obj[key]; !ok || string(raw) == "null" {
		return nil, &DataShapeError{URL: target, Key: key}
	}
	return obj, nil
}
