package replicate

import (
	"bytes"
	"context"
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

const providerName = "replicate"

type Options struct {
	BaseURL    string
	APIToken   string
	Version    string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     *infra.Logger
}

// Client creates predictions with a completion webhook.
type Client struct {
	baseURL    string
	apiToken   string
	version    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *infra.Logger
}

type predictionInput struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image,omitempty"`
}

type predictionRequest struct {
	Version             string          `json:"version"`
	Input               predictionInput `json:"input"`
	Webhook             string          `json:"webhook"`
	WebhookEventsFilter []string        `json:"webhook_events_filter"`
}

type predictionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Detail string `json:"detail"`
	Error  any    `json:"error"`
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		apiToken:   strings.TrimSpace(opts.APIToken),
		version:    strings.TrimSpace(opts.Version),
		httpClient: httpClient,
		limiter:    opts.Limiter,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}
}

func (c *Client) Name() string { return providerName }

func (c *Client) HasCredentials() bool { return c.apiToken != "" }

// Submit creates a prediction. The model on the request is the version hash when set.
func (c *Client) Submit(ctx context.Context, req providers.Request, callbackURL string) (providers.Acceptance, error) {
	if !c.HasCredentials() {
		return providers.Acceptance{}, providers.Rejected(providerName, "api token is not configured")
	}
	version := req.Model
	if version == "" {
		version = c.version
	}
	if version == "" {
		return providers.Acceptance{}, providers.Rejected(providerName, "model version is not configured")
	}
	if callbackURL == "" {
		return providers.Acceptance{}, providers.Rejected(providerName, "callback url is required")
	}
	if err := providers.Wait(ctx, providerName, c.limiter); err != nil {
		return providers.Acceptance{}, err
	}

	payload, err := json.Marshal(predictionRequest{
		Version:             version,
		Input:               predictionInput{Prompt: req.Prompt, Image: req.ImageURL},
		Webhook:             callbackURL,
		WebhookEventsFilter: []string{"completed"},
	})
	if err != nil {
		return providers.Acceptance{}, fmt.Errorf("replicate: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(payload))
	if err != nil {
		return providers.Acceptance{}, fmt.Errorf("replicate: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return providers.Acceptance{}, ctxErr
		}
		return providers.Acceptance{}, providers.Rejected(providerName, "submit request failed").WithCause(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var parsed predictionResponse
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if parsed.Detail != "" {
			return providers.Acceptance{}, providers.Rejected(providerName, "%s", parsed.Detail)
		}
		return providers.Acceptance{}, providers.Rejected(providerName, "failed to start the job (status %d)", resp.StatusCode)
	}
	if parsed.ID == "" {
		return providers.Acceptance{}, providers.Rejected(providerName, "response did not include a prediction id")
	}
	c.logger.Debug().Str("prediction_id", parsed.ID).Str("status", parsed.Status).Msg("replicate: prediction created")
	return providers.Acceptance{ExternalID: parsed.ID}, nil
}

var _ providers.NonBlockingAdapter = (*Client)(nil)
