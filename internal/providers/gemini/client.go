package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"stylegen/internal/infra"
	"stylegen/internal/providers"
)

const providerName = "gemini"

// generator is the subset of *genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Options struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     *infra.Logger
}

// Client performs a single image-to-image content generation call.
type Client struct {
	models     generator
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *infra.Logger
}

// NewClient dials the Gemini API. An empty key is rejected early.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newClient(gc.Models, opts), nil
}

func newClient(models generator, opts Options) *Client {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		models:     models,
		model:      model,
		httpClient: httpClient,
		limiter:    opts.Limiter,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}
}

func (c *Client) Name() string { return providerName }

// Run sends the prompt and the downloaded input image, returning the first inline image part.
func (c *Client) Run(ctx context.Context, req providers.Request) (providers.Image, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return providers.Image{}, providers.Rejected(providerName, "prompt is required")
	}
	input, mime, err := providers.FetchImage(ctx, c.httpClient, req.ImageURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return providers.Image{}, ctxErr
		}
		return providers.Image{}, providers.Rejected(providerName, "could not read the input image").WithCause(err)
	}
	if err := providers.Wait(ctx, providerName, c.limiter); err != nil {
		return providers.Image{}, err
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			genai.NewPartFromText(req.Prompt),
			genai.NewPartFromBytes(input, mime),
		},
	}}
	cfg := &genai.GenerateContentConfig{ResponseModalities: []string{"IMAGE", "TEXT"}}

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return providers.Image{}, ctxErr
		}
		return providers.Image{}, providers.Rejected(providerName, "generate content failed: %v", err).WithCause(err)
	}
	c.logger.Debug().Str("model", model).Dur("elapsed", time.Since(start)).Msg("gemini: content generated")
	return firstImage(resp)
}

func firstImage(resp *genai.GenerateContentResponse) (providers.Image, error) {
	if resp == nil {
		return providers.Image{}, providers.Reported(providerName, "no image returned")
	}
	var text string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return providers.Image{Data: part.InlineData.Data, MIME: mime}, nil
			}
			if text == "" && strings.TrimSpace(part.Text) != "" {
				text = strings.TrimSpace(part.Text)
			}
		}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return providers.Image{}, providers.Reported(providerName, "prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if text != "" {
		return providers.Image{}, providers.Reported(providerName, "no image returned: %s", text)
	}
	return providers.Image{}, providers.Reported(providerName, "no image returned")
}

var _ providers.BlockingAdapter = (*Client)(nil)
