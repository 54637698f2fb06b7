package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/integral/internal/infrastructure/monitoring"
)

// Client queries a running coordinator's status server.
type Client struct {
	resty *resty.Client
}

// NewClient creates a client for the status server at baseURL. A bare
// host:port is taken as http.
func NewClient(baseURL string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}

	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "integral-status/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	return &Client{resty: r}
}

// Status fetches the coordinator's current progress.
func (c *Client) Status(ctx context.Context) (*monitoring.Progress, error) {
	var p monitoring.Progress
	resp, err := c.resty.R().
		SetContext(ctx).
		SetResult(&p).
		Get("/status")
	if err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch status: %s", resp.Status())
	}
	return &p, nil
}

// Healthy reports whether the status server answers its health check.
func (c *Client) Healthy(ctx context.Context) error {
	resp, err := c.resty.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health check: %s", resp.Status())
	}
	return nil
}
