// Package transport posts device writes to the vendor service.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"melcloud-bridge/internal/command"
)

// DefaultBaseURL is the MELCloud API root.
const DefaultBaseURL = "https://app.melcloud.com/Mitsubishi.Wifi.Client"

// ErrRejected is returned when the server answers a write with a non-2xx status.
var ErrRejected = errors.New("write rejected")

// Config configures the client.
type Config struct {
	BaseURL    string
	ContextKey string
	Timeout    time.Duration
}

// Client sends writes. It does not retry; the next poll tick is the retry.
type Client struct {
	baseURL    string
	contextKey string
	http       *http.Client
	logger     *slog.Logger
}

// New creates a client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		contextKey: cfg.ContextKey,
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "transport"),
	}
}

// Write posts one request to its family endpoint. The response body is read
// only for error reporting.
func (c *Client) Write(ctx context.Context, req command.Request) error {
	path, err := req.Family.SetPath()
	if err != nil {
		return err
	}
	body := req.Body()
	// MELCloud identifies devices by number; keep string ids for other variants.
	if n, err := strconv.Atoi(req.DeviceID); err == nil {
		body["DeviceID"] = n
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal write for device %s: %w", req.DeviceID, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create write request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "melcloud-bridge")
	if c.contextKey != "" {
		httpReq.Header.Set("X-MitsContextKey", c.contextKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("write device %s: %w", req.DeviceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("write device %s: %w: status %d: %s", req.DeviceID, ErrRejected, resp.StatusCode, bytes.TrimSpace(detail))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	c.logger.Debug("write accepted", "device", req.DeviceID, "path", path, "flags", fmt.Sprintf("%#x", req.Flags))
	return nil
}
