package generation

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"

	"stylegen/internal/domain"
	"stylegen/internal/infra"
	"stylegen/internal/providers"
)

const (
	msgCancelled           = "generation cancelled by caller"
	msgProviderUnavailable = "provider not configured"
	subjectHint            = ". The main subject should closely resemble the person in this image: "
)

// ImageSaver persists Blocking results and returns a public reference.
type ImageSaver interface {
	SaveGenerated(ctx context.Context, jobID string, data []byte) (string, error)
}

// CallbackFunc builds the webhook URL a NonBlocking provider must call for a job.
type CallbackFunc func(provider, jobID string) string

type Options struct {
	Templates domain.TemplateRegistry
	Store     domain.GenerationStore
	Providers *providers.Set
	Publisher domain.StatusPublisher
	Images    ImageSaver
	Callback  CallbackFunc
	Logger    *infra.Logger
}

// Service runs the submit path of the job lifecycle.
type Service struct {
	templates domain.TemplateRegistry
	store     domain.GenerationStore
	providers *providers.Set
	publisher domain.StatusPublisher
	images    ImageSaver
	callback  CallbackFunc
	logger    *infra.Logger
}

func NewService(opts Options) *Service {
	set := opts.Providers
	if set == nil {
		set = providers.NewSet()
	}
	return &Service{
		templates: opts.Templates,
		store:     opts.Store,
		providers: set,
		publisher: opts.Publisher,
		images:    opts.Images,
		callback:  opts.Callback,
		logger:    infra.LoggerOrDiscard(opts.Logger),
	}
}

// SubmitRequest is the client payload.
type SubmitRequest struct {
	TemplateID string
	ImageURLs  []string
	Properties map[string]any
}

// SubmitResult carries Image (base64) for Blocking jobs; NonBlocking callers only get GenerationID.
type SubmitResult struct {
	Mode         domain.GenerationMode
	GenerationID string
	Image        string
	Job          domain.GenerationJob
}

// Submit validates the request, creates the job and drives it through the template's provider.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	templateID := strings.TrimSpace(req.TemplateID)
	if templateID == "" {
		return SubmitResult{}, domain.NewError(domain.ErrInvalidRequest, "templateId is required")
	}
	imageURL, err := firstImageURL(req.ImageURLs)
	if err != nil {
		return SubmitResult{}, err
	}

	tpl, err := s.templates.Lookup(ctx, templateID)
	if err != nil {
		return SubmitResult{}, err
	}

	kind := tpl.Provider.Kind
	mode := tpl.Provider.Mode
	var (
		blocking    providers.BlockingAdapter
		nonBlocking providers.NonBlockingAdapter
		ok          bool
	)
	switch mode {
	case domain.ModeBlocking:
		blocking, ok = s.providers.Blocking(kind)
	case domain.ModeNonBlocking:
		nonBlocking, ok = s.providers.NonBlocking(kind)
	}
	if !ok {
		s.logger.Warn().Str("template_id", templateID).Str("provider", kind).Str("mode", string(mode)).
			Msg("generation: provider not configured")
		return SubmitResult{}, domain.NewError(domain.ErrTemplateNotFound, msgProviderUnavailable)
	}

	props := map[string]any{}
	for k, v := range req.Properties {
		props[k] = v
	}
	props["input_image_url"] = imageURL
	if tpl.Provider.Model != "" {
		props["model"] = tpl.Provider.Model
	}

	job, err := s.store.Create(ctx, domain.NewGeneration{
		TemplateID: tpl.ID,
		Mode:       mode,
		Provider:   kind,
		Properties: props,
	})
	if err != nil {
		return SubmitResult{}, err
	}
	log := s.logger.With().Str("job_id", job.ID).Str("provider", kind).Str("mode", string(mode)).Logger()
	log.Info().Str("template_id", tpl.ID).Msg("generation: job created")

	preq := providers.Request{
		Prompt:   buildPrompt(tpl, imageURL),
		ImageURL: imageURL,
		Model:    tpl.Provider.Model,
	}
	if mode == domain.ModeBlocking {
		return s.runBlocking(ctx, &log, job, blocking, preq)
	}
	return s.submitNonBlocking(ctx, &log, job, nonBlocking, preq)
}

func (s *Service) runBlocking(ctx context.Context, log *infra.Logger, job domain.GenerationJob, adapter providers.BlockingAdapter, req providers.Request) (SubmitResult, error) {
	img, runErr := adapter.Run(ctx, req)
	// the terminal write must land even when the caller went away
	writeCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		msg := providers.FailureMessage(runErr)
		if ctx.Err() != nil {
			msg = msgCancelled
		}
		log.Warn().Err(runErr).Msg("generation: blocking provider failed")
		if _, err := s.finish(writeCtx, log, job.ID, domain.Failed(msg)); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{}, runErr
	}

	data, reference, err := s.materialize(writeCtx, job.ID, img)
	if err != nil {
		log.Error().Err(err).Msg("generation: could not persist result")
		if _, ferr := s.finish(writeCtx, log, job.ID, domain.Failed("could not store the generated image")); ferr != nil {
			return SubmitResult{}, ferr
		}
		return SubmitResult{}, err
	}

	updated, err := s.finish(writeCtx, log, job.ID, domain.Succeeded(reference))
	if err != nil {
		return SubmitResult{}, err
	}
	result := SubmitResult{Mode: domain.ModeBlocking, GenerationID: job.ID, Job: updated}
	if len(data) > 0 {
		result.Image = base64.StdEncoding.EncodeToString(data)
	} else {
		result.Image = reference
	}
	return result, nil
}

// materialize turns an adapter image into the bytes returned to the caller and the stored reference.
func (s *Service) materialize(ctx context.Context, jobID string, img providers.Image) ([]byte, string, error) {
	if len(img.Data) == 0 {
		if img.URL == "" {
			return nil, "", providers.Reported("generation", "provider returned no image")
		}
		return nil, img.URL, nil
	}
	if s.images != nil {
		ref, err := s.images.SaveGenerated(ctx, jobID, img.Data)
		if err != nil {
			return nil, "", err
		}
		return img.Data, ref, nil
	}
	mime := img.MIME
	if mime == "" {
		mime = "image/png"
	}
	return img.Data, "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data), nil
}

func (s *Service) submitNonBlocking(ctx context.Context, log *infra.Logger, job domain.GenerationJob, adapter providers.NonBlockingAdapter, req providers.Request) (SubmitResult, error) {
	var callbackURL string
	if s.callback != nil {
		callbackURL = s.callback(adapter.Name(), job.ID)
	}
	acc, subErr := adapter.Submit(ctx, req, callbackURL)
	writeCtx := context.WithoutCancel(ctx)
	if subErr != nil {
		msg := providers.FailureMessage(subErr)
		if ctx.Err() != nil {
			msg = msgCancelled
		}
		log.Warn().Err(subErr).Msg("generation: submission rejected")
		if _, err := s.finish(writeCtx, log, job.ID, domain.Failed(msg)); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{}, subErr
	}

	if acc.ExternalID != "" {
		if err := s.store.MergeProperties(writeCtx, job.ID, map[string]any{"external_id": acc.ExternalID}); err != nil {
			log.Warn().Err(err).Msg("generation: could not record external id")
		}
	}
	log.Info().Str("external_id", acc.ExternalID).Msg("generation: awaiting webhook")
	return SubmitResult{Mode: domain.ModeNonBlocking, GenerationID: job.ID, Job: job}, nil
}

// finish applies out and publishes when the transition actually happened.
func (s *Service) finish(ctx context.Context, log *infra.Logger, jobID string, out domain.Outcome) (domain.GenerationJob, error) {
	job, applied, err := s.store.TransitionToTerminal(ctx, jobID, out)
	if err != nil {
		log.Error().Err(err).Str("status", string(out.Status)).Msg("generation: terminal write failed")
		return domain.GenerationJob{}, err
	}
	if !applied {
		log.Info().Str("status", string(out.Status)).Msg("generation: job already terminal")
		return job, nil
	}
	publish(ctx, s.publisher, log, job)
	return job, nil
}

func publish(ctx context.Context, p domain.StatusPublisher, log *infra.Logger, job domain.GenerationJob) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, domain.EventFromJob(job)); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("generation: publish status failed")
	}
}

func firstImageURL(urls []string) (string, error) {
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", domain.NewError(domain.ErrInvalidRequest, "imageUrls must contain an absolute http(s) url")
		}
		return raw, nil
	}
	return "", domain.NewError(domain.ErrInvalidRequest, "at least one image url is required")
}

func buildPrompt(tpl domain.Template, imageURL string) string {
	prompt := strings.TrimSpace(tpl.Prompt)
	if tpl.EnhanceWithSubject {
		prompt = strings.TrimRight(prompt, ". ") + subjectHint + imageURL
	}
	return prompt
}
