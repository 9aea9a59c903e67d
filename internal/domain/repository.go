package domain

import "context"

// GenerationStore is the single source of truth for job status.
type GenerationStore interface {
	Create(ctx context.Context, in NewGeneration) (GenerationJob, error)
	Get(ctx context.Context, id string) (GenerationJob, error)
	// TransitionToTerminal applies out only when the job is still processing.
	// applied is false when the job is already terminal or unknown; that is not an error.
	TransitionToTerminal(ctx context.Context, id string, out Outcome) (job GenerationJob, applied bool, err error)
	// MergeProperties adds audit metadata without touching status fields.
	MergeProperties(ctx context.Context, id string, props map[string]any) error
}

// TemplateRegistry resolves templates; misses return ErrTemplateNotFound.
type TemplateRegistry interface {
	Lookup(ctx context.Context, id string) (Template, error)
}

// TemplateSource is a raw, uncached template reader.
type TemplateSource interface {
	FindTemplate(ctx context.Context, id string) (Template, error)
}

// StatusPublisher fans out applied transitions.
type StatusPublisher interface {
	Publish(ctx context.Context, evt StatusEvent) error
}
