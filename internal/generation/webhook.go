package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"stylegen/internal/domain"
	"stylegen/internal/infra"
)

// MaxWebhookBody bounds how much of a callback body is read.
const MaxWebhookBody = 1 << 20

const (
	msgJSONError      = "provider returned a JSON error"
	msgInvalidPayload = "webhook returned invalid or empty data"
)

// Disposition describes what the receiver did with a callback.
type Disposition string

const (
	Applied    Disposition = "applied"
	Duplicate  Disposition = "duplicate"
	UnknownJob Disposition = "unknown_job"
	Ignored    Disposition = "ignored"
	Pending    Disposition = "pending"
)

// Receiver reconciles provider callbacks into terminal transitions.
type Receiver struct {
	store     domain.GenerationStore
	publisher domain.StatusPublisher
	logger    *infra.Logger
}

func NewReceiver(store domain.GenerationStore, publisher domain.StatusPublisher, logger *infra.Logger) *Receiver {
	return &Receiver{store: store, publisher: publisher, logger: infra.LoggerOrDiscard(logger)}
}

// Handle processes one callback. Only a missing id or a store failure is returned as an error;
// every other case is acknowledged so the provider stops retrying.
func (r *Receiver) Handle(ctx context.Context, provider, jobID, contentType string, body []byte) (Disposition, error) {
	return r.resolve(ctx, provider, jobID, func(job domain.GenerationJob) (domain.Outcome, bool) {
		return Classify(job.Provider, contentType, body)
	})
}

// RejectOversized fails the job behind a callback whose body exceeded MaxWebhookBody.
func (r *Receiver) RejectOversized(ctx context.Context, provider, jobID string) (Disposition, error) {
	return r.resolve(ctx, provider, jobID, func(domain.GenerationJob) (domain.Outcome, bool) {
		return domain.Failed(msgInvalidPayload), true
	})
}

func (r *Receiver) resolve(ctx context.Context, provider, jobID string, classify func(domain.GenerationJob) (domain.Outcome, bool)) (Disposition, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", domain.NewError(domain.ErrInvalidRequest, "missing generation id")
	}
	log := r.logger.With().Str("job_id", jobID).Str("provider", provider).Logger()

	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			log.Warn().Msg("webhook: unknown generation id")
			return UnknownJob, nil
		}
		return "", err
	}
	if job.Mode != domain.ModeNonBlocking {
		log.Warn().Str("mode", string(job.Mode)).Msg("webhook: job is not owned by webhooks")
		return Ignored, nil
	}
	// the job's own provider decides the payload shape, never the callback path
	if !strings.EqualFold(provider, job.Provider) {
		log.Warn().Str("job_provider", job.Provider).Msg("webhook: callback provider does not match job")
		return Ignored, nil
	}
	if job.Status.Terminal() {
		log.Info().Str("status", string(job.Status)).Msg("webhook: duplicate callback")
		return Duplicate, nil
	}

	out, final := classify(job)
	if !final {
		log.Debug().Msg("webhook: non-terminal update")
		return Pending, nil
	}

	updated, applied, err := r.store.TransitionToTerminal(ctx, jobID, out)
	if err != nil {
		log.Error().Err(err).Msg("webhook: terminal write failed")
		return "", err
	}
	if !applied {
		log.Info().Msg("webhook: lost race to another callback")
		return Duplicate, nil
	}
	log.Info().Str("status", string(updated.Status)).Msg("webhook: job finished")
	publish(ctx, r.publisher, &log, updated)
	return Applied, nil
}

// Classify maps a callback body onto an outcome. final is false for progress updates
// that must not finish the job.
func Classify(provider, contentType string, body []byte) (out domain.Outcome, final bool) {
	if strings.EqualFold(provider, domain.ProviderReplicate) {
		return classifyPrediction(body)
	}
	return classifyGeneric(contentType, body), true
}

func classifyGeneric(contentType string, body []byte) domain.Outcome {
	trimmed := bytes.TrimSpace(body)
	if strings.Contains(strings.ToLower(contentType), "application/json") || bytes.HasPrefix(trimmed, []byte("{")) {
		var payload struct {
			Error any `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &payload); err == nil {
			if msg := errorText(payload.Error); msg != "" {
				return domain.Failed(msg)
			}
		}
		return domain.Failed(msgJSONError)
	}
	text := string(trimmed)
	if strings.HasPrefix(text, "http") {
		return domain.Succeeded(text)
	}
	return domain.Failed(msgInvalidPayload)
}

type prediction struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

func classifyPrediction(body []byte) (domain.Outcome, bool) {
	var p prediction
	if err := json.Unmarshal(bytes.TrimSpace(body), &p); err != nil || p.Status == "" {
		return domain.Failed(msgInvalidPayload), true
	}
	switch strings.ToLower(p.Status) {
	case "succeeded":
		if u := firstOutput(p.Output); u != "" {
			return domain.Succeeded(u), true
		}
		return domain.Failed(msgInvalidPayload), true
	case "failed", "canceled", "cancelled":
		if msg := errorText(p.Error); msg != "" {
			return domain.Failed(msg), true
		}
		return domain.Failed("prediction " + strings.ToLower(p.Status)), true
	case "starting", "processing":
		return domain.Outcome{}, false
	default:
		return domain.Failed(msgInvalidPayload), true
	}
}

// firstOutput accepts both a single URL and a list of URLs.
func firstOutput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, u := range list {
			if u = strings.TrimSpace(u); u != "" {
				return u
			}
		}
	}
	return ""
}

func errorText(v any) string {
	switch e := v.(type) {
	case string:
		return strings.TrimSpace(e)
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return strings.TrimSpace(msg)
		}
	}
	return ""
}
