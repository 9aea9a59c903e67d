package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stylegen/internal/infra"
	"stylegen/internal/providers"
)

const providerName = "azure"

// Options configures the Azure OpenAI DALL-E client.
type Options struct {
	Endpoint     string
	APIKey       string
	APIVersion   string
	Model        string
	Size         string
	PollInterval time.Duration
	MaxAttempts  int
	HTTPClient   *http.Client
	Limiter      *rate.Limiter
	Logger       *infra.Logger
}

// Client submits image jobs to the asynchronous generations API and polls the operation until it settles.
type Client struct {
	endpoint     string
	apiKey       string
	apiVersion   string
	model        string
	size         string
	pollInterval time.Duration
	maxAttempts  int
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *infra.Logger
}

type submitRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type operationStatus struct {
	Status string `json:"status"`
	Result struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
		} `json:"data"`
	} `json:"result"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient constructs a client with defaults matching the service's poll budget.
func NewClient(opts Options) *Client {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint != "" && !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	apiVersion := opts.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-03-01-preview"
	}
	model := opts.Model
	if model == "" {
		model = "dall-e-3"
	}
	size := opts.Size
	if size == "" {
		size = "1024x1024"
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 18
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint:     endpoint,
		apiKey:       strings.TrimSpace(opts.APIKey),
		apiVersion:   apiVersion,
		model:        model,
		size:         size,
		pollInterval: interval,
		maxAttempts:  attempts,
		httpClient:   httpClient,
		limiter:      opts.Limiter,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
}

func (c *Client) Name() string { return providerName }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != "" && c.endpoint != ""
}

// Run submits once, then polls the operation. Only the status poll is repeated.
func (c *Client) Run(ctx context.Context, req providers.Request) (providers.Image, error) {
	if !c.HasCredentials() {
		return providers.Image{}, providers.Rejected(providerName, "endpoint or api key is not configured")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return providers.Image{}, providers.Rejected(providerName, "prompt is required")
	}
	if err := providers.Wait(ctx, providerName, c.limiter); err != nil {
		return providers.Image{}, err
	}
	operationURL, err := c.submit(ctx, req)
	if err != nil {
		return providers.Image{}, err
	}
	return c.poll(ctx, operationURL)
}

func (c *Client) submit(ctx context.Context, req providers.Request) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	body, err := json.Marshal(submitRequest{
		Model:          model,
		Prompt:         req.Prompt,
		N:              1,
		Size:           c.size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return "", fmt.Errorf("azure: encode request: %w", err)
	}
	endpoint := c.endpoint + "openai/images/generations:submit?api-version=" + c.apiVersion
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("azure: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", providers.Rejected(providerName, "submit request failed").WithCause(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusAccepted {
		var detail apiError
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
			return "", providers.Rejected(providerName, "%s", detail.Error.Message)
		}
		return "", providers.Rejected(providerName, "failed to start image generation (status %d)", resp.StatusCode)
	}
	operationURL := strings.TrimSpace(resp.Header.Get("operation-location"))
	if operationURL == "" {
		return "", providers.Rejected(providerName, "response did not include an operation-location header")
	}
	c.logger.Debug().Str("operation", operationURL).Msg("azure: job accepted")
	return operationURL, nil
}

func (c *Client) poll(ctx context.Context, operationURL string) (providers.Image, error) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return providers.Image{}, ctx.Err()
		case <-timer.C:
		}

		status, err := c.fetchStatus(ctx, operationURL)
		if err != nil {
			return providers.Image{}, err
		}
		c.logger.Debug().Int("attempt", attempt).Str("status", status.Status).Msg("azure: polled operation")

		switch strings.ToLower(status.Status) {
		case "succeeded":
			return decodeResult(status)
		case "failed", "canceled", "cancelled":
			msg := status.Error.Message
			if msg == "" {
				msg = "image generation " + strings.ToLower(status.Status)
			}
			return providers.Image{}, providers.Reported(providerName, "image generation failed: %s", msg)
		}
		timer.Reset(c.pollInterval)
	}

	total := c.pollInterval * time.Duration(c.maxAttempts)
	return providers.Image{}, providers.Timeout(providerName,
		fmt.Sprintf("image generation timed out after %d seconds", int(total.Seconds())))
}

// fetchStatus treats any transport or HTTP error as final.
func (c *Client) fetchStatus(ctx context.Context, operationURL string) (operationStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
	if err != nil {
		return operationStatus{}, providers.Reported(providerName, "invalid operation location").WithCause(err)
	}
	req.Header.Set("api-key", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return operationStatus{}, ctxErr
		}
		return operationStatus{}, providers.Reported(providerName, "polling for result failed").WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return operationStatus{}, providers.Reported(providerName, "polling for result failed with status %d", resp.StatusCode)
	}
	var status operationStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(&status); err != nil {
		return operationStatus{}, providers.Reported(providerName, "malformed status response").WithCause(err)
	}
	return status, nil
}

func decodeResult(status operationStatus) (providers.Image, error) {
	if len(status.Result.Data) == 0 {
		return providers.Image{}, providers.Reported(providerName, "success status without image data")
	}
	item := status.Result.Data[0]
	if item.B64JSON == "" {
		if item.URL != "" {
			return providers.Image{URL: item.URL}, nil
		}
		return providers.Image{}, providers.Reported(providerName, "success status without image data")
	}
	data, err := base64.StdEncoding.DecodeString(item.B64JSON)
	if err != nil {
		return providers.Image{}, providers.Reported(providerName, "image data is not valid base64").WithCause(err)
	}
	return providers.Image{Data: data, MIME: "image/png"}, nil
}

var _ providers.BlockingAdapter = (*Client)(nil)
