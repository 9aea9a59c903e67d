package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"stylegen/internal/domain"
	"stylegen/internal/generation"
	"stylegen/internal/middleware"
	"stylegen/internal/providers"
)

const maxSubmitBody = 64 << 10

type submitRequest struct {
	TemplateID string   `json:"templateId"`
	ImageURLs  []string `json:"imageUrls"`
}

type blockingResponse struct {
	Image        string `json:"image"`
	GenerationID string `json:"generationId"`
}

type nonBlockingResponse struct {
	GenerationID string `json:"generationId"`
}

// SubmitGeneration answers 200 with the image or the generation id, and 500 {error} on any failure.
func (a *App) SubmitGeneration(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSubmitBody))
	if err := dec.Decode(&req); err != nil {
		a.error(w, http.StatusInternalServerError, "invalid request body")
		return
	}

	ctx := r.Context()
	props := map[string]any{"locale": middleware.LocaleFromContext(ctx)}
	if v := middleware.CountryFromContext(ctx); v != "" {
		props["country"] = v
	}
	if v := middleware.UserIDFromContext(ctx); v != "" {
		props["user_id"] = v
	}
	if v := middleware.RequestIDFromContext(ctx); v != "" {
		props["request_id"] = v
	}

	res, err := a.Generations.Submit(ctx, generation.SubmitRequest{
		TemplateID: req.TemplateID,
		ImageURLs:  req.ImageURLs,
		Properties: props,
	})
	if err != nil {
		a.Logger.Warn().Err(err).Str("template_id", req.TemplateID).Msg("submit generation failed")
		a.error(w, http.StatusInternalServerError, submitErrorMessage(err))
		return
	}
	if res.Mode == domain.ModeBlocking {
		a.json(w, http.StatusOK, blockingResponse{Image: res.Image, GenerationID: res.GenerationID})
		return
	}
	a.json(w, http.StatusOK, nonBlockingResponse{GenerationID: res.GenerationID})
}

func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrProviderRejected),
		errors.Is(err, domain.ErrProviderTimeout),
		errors.Is(err, domain.ErrProviderReportedFailure):
		return providers.FailureMessage(err)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "generation store unavailable"
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrTemplateNotFound):
		return domain.Message(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "generation cancelled by caller"
	default:
		return "generation failed"
	}
}

// GetGeneration returns the current job projection.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	job, err := a.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			a.error(w, http.StatusNotFound, "generation not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", id).Msg("load generation failed")
		a.error(w, http.StatusInternalServerError, "generation store unavailable")
		return
	}
	a.json(w, http.StatusOK, job)
}

// GenerationSocket upgrades to a websocket that streams the job status until it is terminal.
func (a *App) GenerationSocket(w http.ResponseWriter, r *http.Request) {
	if a.Sockets == nil {
		a.error(w, http.StatusNotImplemented, "status streaming disabled")
		return
	}
	a.Sockets.Serve(w, r, strings.TrimSpace(chi.URLParam(r, "id")))
}
