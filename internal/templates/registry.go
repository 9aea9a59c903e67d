package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"stylegen/internal/domain"
	"stylegen/internal/infra"
)

// Registry caches template lookups in front of a slower source.
// Only hits are cached so a template added later becomes visible on the next lookup.
type Registry struct {
	source domain.TemplateSource
	cache  *cache.Cache
	group  singleflight.Group
	logger *infra.Logger
}

// NewRegistry wraps source with a TTL cache.
func NewRegistry(source domain.TemplateSource, ttl time.Duration, logger *infra.Logger) *Registry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{
		source: source,
		cache:  cache.New(ttl, 2*ttl),
		logger: infra.LoggerOrDiscard(logger),
	}
}

// Lookup resolves id to a normalized template.
func (r *Registry) Lookup(ctx context.Context, id string) (domain.Template, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Template{}, domain.NewError(domain.ErrInvalidRequest, "templateId is required")
	}
	if cached, ok := r.cache.Get(id); ok {
		return cached.(domain.Template), nil
	}

	// shared by every waiter, so one caller cancelling must not fail the rest
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(id, func() (any, error) {
		tpl, err := r.source.FindTemplate(loadCtx, id)
		if errors.Is(err, domain.ErrTemplateNotFound) {
			return nil, domain.NewError(domain.ErrTemplateNotFound, fmt.Sprintf("template %s not found", id))
		}
		if err != nil {
			return nil, err
		}
		if err := tpl.Normalize(); err != nil {
			r.logger.Warn().Err(err).Str("template_id", id).Msg("templates: misconfigured template")
			return nil, domain.NewError(domain.ErrTemplateNotFound, err.Error())
		}
		r.cache.SetDefault(id, tpl)
		return tpl, nil
	})
	if err != nil {
		return domain.Template{}, err
	}
	return v.(domain.Template), nil
}

// Invalidate drops a cached template.
func (r *Registry) Invalidate(id string) {
	r.cache.Delete(id)
}

var _ domain.TemplateRegistry = (*Registry)(nil)
