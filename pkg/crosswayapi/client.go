// Package crosswayapi is a typed client for the crossway HTTP API.
package crosswayapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"crossway/internal/domain"
)

// RandomDirection asks the server to pick the approach.
const RandomDirection = "random"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type SpawnResult struct {
	Accepted bool            `json:"accepted"`
	Vehicle  *domain.Vehicle `json:"vehicle,omitempty"`
}

type apiError struct {
	Error string `json:"error"`
}

// Spawn requests a vehicle on the given approach ("north", ..., or "random").
// An empty lane lets the server pick one.
func (c *Client) Spawn(ctx context.Context, direction, lane string) (SpawnResult, error) {
	var body io.Reader
	if lane != "" {
		data, err := json.Marshal(map[string]string{"lane": lane})
		if err != nil {
			return SpawnResult{}, errors.Wrap(err, "encoding spawn request")
		}
		body = bytes.NewReader(data)
	}

	var res SpawnResult
	if err := c.do(ctx, http.MethodPost, "/v1/spawn/"+direction, body, &res); err != nil {
		return SpawnResult{}, errors.Wrapf(err, "spawn %s", direction)
	}
	return res, nil
}

func (c *Client) Frame(ctx context.Context) (domain.Frame, error) {
	var f domain.Frame
	if err := c.do(ctx, http.MethodGet, "/v1/frame", nil, &f); err != nil {
		return domain.Frame{}, errors.Wrap(err, "get frame")
	}
	return f, nil
}

func (c *Client) Signals(ctx context.Context) (domain.SignalState, error) {
	var s domain.SignalState
	if err := c.do(ctx, http.MethodGet, "/v1/signals", nil, &s); err != nil {
		return domain.SignalState{}, errors.Wrap(err, "get signals")
	}
	return s, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "executing request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr) == nil && apiErr.Error != "" {
			return errors.Errorf("unexpected status code %d: %s", resp.StatusCode, apiErr.Error)
		}
		return errors.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}

// String is used in trafficgen logs.
func (r SpawnResult) String() string {
	if !r.Accepted || r.Vehicle == nil {
		return "declined"
	}
	return fmt.Sprintf("vehicle %d %s/%s", r.Vehicle.ID, r.Vehicle.Origin, r.Vehicle.Class)
}
