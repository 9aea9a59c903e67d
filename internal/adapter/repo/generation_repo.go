package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stylegen/internal/domain"
	"stylegen/internal/infra"
	"stylegen/internal/sqlinline"
)

// GenerationRepositoryPG implements domain.GenerationStore on PostgreSQL.
type GenerationRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewGenerationRepository creates a store backed by the generations table.
func NewGenerationRepository(sql infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{sql: sql}
}

// Create inserts a processing job.
func (r *GenerationRepositoryPG) Create(ctx context.Context, in domain.NewGeneration) (domain.GenerationJob, error) {
	if in.TemplateID == "" || !in.Mode.Valid() {
		return domain.GenerationJob{}, domain.NewError(domain.ErrInvalidRequest, "template id and mode are required")
	}
	props, err := marshalProperties(in.Properties)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertGeneration, in.TemplateID, string(in.Mode), in.Provider, props)
	job, err := scanGeneration(row)
	if err != nil {
		return domain.GenerationJob{}, domain.Unavailable(fmt.Errorf("insert generation: %w", err))
	}
	return job, nil
}

// Get fetches a job by id.
func (r *GenerationRepositoryPG) Get(ctx context.Context, id string) (domain.GenerationJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.GenerationJob{}, domain.ErrJobNotFound
	}
	job, err := scanGeneration(r.sql.QueryRow(ctx, sqlinline.QSelectGeneration, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.GenerationJob{}, domain.ErrJobNotFound
		}
		return domain.GenerationJob{}, domain.Unavailable(fmt.Errorf("select generation: %w", err))
	}
	return job, nil
}

// TransitionToTerminal runs the conditional update; no returned row means the job was already terminal or unknown.
func (r *GenerationRepositoryPG) TransitionToTerminal(ctx context.Context, id string, out domain.Outcome) (domain.GenerationJob, bool, error) {
	if err := out.Validate(); err != nil {
		return domain.GenerationJob{}, false, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.GenerationJob{}, false, nil
	}
	row := r.sql.QueryRow(ctx, sqlinline.QTransitionGeneration, id, string(out.Status), out.ResultImage, out.ErrorMessage)
	job, err := scanGeneration(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.GenerationJob{}, false, nil
		}
		return domain.GenerationJob{}, false, domain.Unavailable(fmt.Errorf("transition generation: %w", err))
	}
	return job, true, nil
}

// MergeProperties adds keys to the job's audit metadata.
func (r *GenerationRepositoryPG) MergeProperties(ctx context.Context, id string, props map[string]any) error {
	if len(props) == 0 {
		return nil
	}
	raw, err := marshalProperties(props)
	if err != nil {
		return err
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QMergeGenerationProperties, id, raw); err != nil {
		return domain.Unavailable(fmt.Errorf("merge generation properties: %w", err))
	}
	return nil
}

func scanGeneration(row pgx.Row) (domain.GenerationJob, error) {
	var (
		job    domain.GenerationJob
		mode   string
		status string
		props  []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.TemplateID,
		&mode,
		&job.Provider,
		&status,
		&job.ResultImage,
		&job.ErrorMessage,
		&props,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return domain.GenerationJob{}, err
	}
	job.Mode = domain.GenerationMode(mode)
	job.Status = domain.GenerationStatus(status)
	if len(props) > 0 {
		job.Properties = json.RawMessage(props)
	}
	return job, nil
}

func marshalProperties(props map[string]any) ([]byte, error) {
	if len(props) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("encode properties: %w", err)
	}
	return raw, nil
}

var _ domain.GenerationStore = (*GenerationRepositoryPG)(nil)
