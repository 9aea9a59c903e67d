package pollinations

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stylegen/internal/infra"
	"stylegen/internal/providers"
)

const providerName = "pollinations"

// Options configures the Pollinations client.
type Options struct {
	BaseURL      string
	DefaultModel string
	HTTPClient   *http.Client
	Limiter      *rate.Limiter
	Logger       *infra.Logger
}

// Client starts image jobs through the URL-parameterised prompt endpoint; results arrive on the webhook.
type Client struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *infra.Logger
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://image.pollinations.ai"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:      baseURL,
		defaultModel: opts.DefaultModel,
		httpClient:   httpClient,
		limiter:      opts.Limiter,
		logger:       infra.LoggerOrDiscard(opts.Logger),
	}
}

func (c *Client) Name() string { return providerName }

// SubmitURL builds the GET request URL carrying prompt, input image, model and webhook.
func (c *Client) SubmitURL(req providers.Request, callbackURL string) string {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	q := url.Values{}
	q.Set("image", req.ImageURL)
	if model != "" {
		q.Set("model", model)
	}
	q.Set("webhook", callbackURL)
	return c.baseURL + "/prompt/" + url.PathEscape(req.Prompt) + "?" + q.Encode()
}

// Submit returns once the provider acknowledges the job.
func (c *Client) Submit(ctx context.Context, req providers.Request, callbackURL string) (providers.Acceptance, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return providers.Acceptance{}, providers.Rejected(providerName, "prompt is required")
	}
	if callbackURL == "" {
		return providers.Acceptance{}, providers.Rejected(providerName, "callback url is required")
	}
	if err := providers.Wait(ctx, providerName, c.limiter); err != nil {
		return providers.Acceptance{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SubmitURL(req, callbackURL), nil)
	if err != nil {
		return providers.Acceptance{}, providers.Rejected(providerName, "invalid request").WithCause(err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return providers.Acceptance{}, ctxErr
		}
		return providers.Acceptance{}, providers.Rejected(providerName, "submit request failed").WithCause(err)
	}
	defer resp.Body.Close()
	// The body may be a streamed image when the provider ignores the webhook; only the status matters.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return providers.Acceptance{}, providers.Rejected(providerName, "failed to start the job (status %d)", resp.StatusCode)
	}
	c.logger.Debug().Str("callback", callbackURL).Msg("pollinations: job submitted")
	return providers.Acceptance{}, nil
}

var _ providers.NonBlockingAdapter = (*Client)(nil)
