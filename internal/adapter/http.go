package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/aristath/warden/internal/domain"
)

// HTTPConfig configures a remote host adapter.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// HTTP drives a host that exposes the regulator contract over REST:
// GET /state returns an EconomyState, POST /params applies a parameter.
type HTTP struct {
	client *resty.Client
	log    zerolog.Logger
}

type setParamRequest struct {
	Key   string                 `json:"key"`
	Value float64                `json:"value"`
	Scope *domain.ParameterScope `json:"scope,omitempty"`
}

// NewHTTP creates a remote adapter.
func NewHTTP(cfg HTTPConfig, log zerolog.Logger) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &HTTP{
		client: client,
		log:    log.With().Str("component", "adapter.http").Logger(),
	}
}

// GetState fetches the host snapshot.
func (h *HTTP) GetState(ctx context.Context) (*domain.EconomyState, error) {
	var state domain.EconomyState
	resp, err := h.client.R().
		SetContext(ctx).
		SetResult(&state).
		Get("/state")
	if err != nil {
		return nil, fmt.Errorf("fetch state: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch state: host returned %s", resp.Status())
	}
	return &state, nil
}

// SetParam pushes one parameter value to the host.
func (h *HTTP) SetParam(ctx context.Context, key string, value float64, scope *domain.ParameterScope) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(setParamRequest{Key: key, Value: value, Scope: scope}).
		Post("/params")
	if err != nil {
		return fmt.Errorf("set param %s: %w", key, err)
	}
	if resp.IsError() {
		return fmt.Errorf("set param %s: host returned %s", key, resp.Status())
	}
	h.log.Debug().Str("key", key).Float64("value", value).Msg("parameter pushed to host")
	return nil
}

// OnEvent is a no-op; remote hosts deliver events inside
// state.RecentTransactions or through the regulator's ingest endpoint.
func (h *HTTP) OnEvent(EventHandler) {}
