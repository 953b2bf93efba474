// Package slots talks to the external slot-availability engine.
package slots

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/praxis-booking/pkg/logging"
)

const (
	defaultTimeout = 5 * time.Second
	queryPath      = "/v1/slots/query"
)

// Client queries the slot engine over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a slot engine client for baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type queryResponse struct {
	Slots []Candidate `json:"slots"`
}

// Find posts q to the engine and returns every candidate it reports.
func (c *Client) Find(ctx context.Context, q Query) ([]Candidate, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("slots: missing base url")
	}
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("slots: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("slots: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slots: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("slots: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, fmt.Errorf("slots: status %d: %s", resp.StatusCode, msg)
	}

	var out queryResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("slots: unmarshal response: %w", err)
	}
	c.logger.Debug("slot query answered",
		"appointment_type_id", q.AppointmentTypeID,
		"candidates", len(out.Slots),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return out.Slots, nil
}
