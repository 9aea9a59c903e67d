package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"stylegen/internal/domain"
	"stylegen/internal/generation"
)

// Webhook receives provider callbacks at /v1/webhooks/{provider}?id=<generation id>.
// Everything except a missing id or a store failure is acknowledged with 200; an oversized
// body fails the job.
func (a *App) Webhook(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	jobID := r.URL.Query().Get("id")

	body, err := io.ReadAll(io.LimitReader(r.Body, generation.MaxWebhookBody+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "could not read body")
		return
	}

	var disp generation.Disposition
	if len(body) > generation.MaxWebhookBody {
		a.Logger.Warn().Str("provider", provider).Str("job_id", jobID).Msg("webhook body too large")
		disp, err = a.Webhooks.RejectOversized(r.Context(), provider, jobID)
	} else {
		disp, err = a.Webhooks.Handle(r.Context(), provider, jobID, r.Header.Get("Content-Type"), body)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			a.error(w, http.StatusBadRequest, domain.Message(err))
			return
		}
		a.Logger.Error().Err(err).Str("provider", provider).Str("job_id", jobID).Msg("webhook failed")
		a.error(w, http.StatusInternalServerError, domain.Message(err))
		return
	}
	a.Logger.Debug().Str("provider", provider).Str("job_id", jobID).Str("disposition", string(disp)).Msg("webhook handled")
	a.json(w, http.StatusOK, map[string]bool{"success": true})
}
