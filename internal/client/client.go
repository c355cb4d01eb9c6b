// Package client is an HTTP client for the scoring API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bnpl-risk/internal/common"
	"bnpl-risk/internal/engine"
	"bnpl-risk/internal/features"
	"bnpl-risk/internal/ml"
	"bnpl-risk/internal/policy"
	"bnpl-risk/internal/storage"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// APIError is a non-2xx response. It unwraps to the matching error kind, so
// errors.Is(err, common.ErrSchema) works across the wire.
type APIError struct {
	Status  int              `json:"-"`
	Code    common.ErrorCode `json:"code"`
	Field   string           `json:"field,omitempty"`
	Message string           `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("risk api: status %d", e.Status)
	}
	return fmt.Sprintf("risk api: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case common.ErrCodeSchema:
		return common.ErrSchema
	case common.ErrCodeConfig:
		return common.ErrConfig
	case common.ErrCodeModelUnavailable:
		return common.ErrModelUnavailable
	case common.ErrCodeInference:
		return common.ErrInference
	}
	return nil
}

// Status is the body of GET /.
type Status struct {
	Status       string `json:"status"`
	ModelLoaded  bool   `json:"model_loaded"`
	ModelVersion string `json:"model_version"`
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/", nil, &out)
	return out, err
}

// Health returns the scorer health. A 503 still decodes the body.
func (c *Client) Health(ctx context.Context) (ml.HealthStatus, error) {
	var out ml.HealthStatus
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get(c.base + "/health")
	if err != nil {
		return out, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusServiceUnavailable {
		return out, &APIError{Status: resp.StatusCode(), Message: resp.String()}
	}
	return out, nil
}

// Predict scores one applicant. body may be a features.Applicant or any
// value that marshals to the same JSON shape.
func (c *Client) Predict(ctx context.Context, body interface{}) (engine.Result, error) {
	var out engine.Result
	err := c.do(ctx, http.MethodPost, "/predict", body, &out)
	return out, err
}

// PredictApplicant is Predict for a typed applicant.
func (c *Client) PredictApplicant(ctx context.Context, a features.Applicant) (engine.Result, error) {
	return c.Predict(ctx, a)
}

func (c *Client) Settings(ctx context.Context) (policy.Settings, error) {
	var out policy.Settings
	err := c.do(ctx, http.MethodGet, "/settings", nil, &out)
	return out, err
}

func (c *Client) UpdateSettings(ctx context.Context, patch policy.SettingsPatch) (policy.Settings, error) {
	var out policy.Settings
	err := c.do(ctx, http.MethodPost, "/settings", patch, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context) (storage.PortfolioStats, error) {
	var out storage.PortfolioStats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

func (c *Client) ModelInfo(ctx context.Context) (ml.ModelMetadata, error) {
	var out ml.ModelMetadata
	err := c.do(ctx, http.MethodGet, "/model/info", nil, &out)
	return out, err
}

// WaitReady polls GET / until the API answers or ctx ends.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) (Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := c.Status(ctx)
		if err == nil {
			return st, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return st, err
		}

		select {
		case <-ctx.Done():
			return Status{}, fmt.Errorf("api not ready: %w", err)
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	apiErr := &APIError{}
	req := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, c.base+path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		if apiErr.Message == "" && apiErr.Code == "" {
			apiErr.Message = resp.String()
		}
		return apiErr
	}
	return nil
}
