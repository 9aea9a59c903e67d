package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"

	"stylegen/internal/domain"
)

const generationsTable = "generations"

// GenerationRepositorySupabase implements domain.GenerationStore through PostgREST.
// The terminal write filters on status=processing, so PostgREST issues a single conditional UPDATE.
type GenerationRepositorySupabase struct {
	client *supabase.Client
	now    func() time.Time
}

// NewSupabaseGenerationRepository connects a PostgREST client with the service key.
func NewSupabaseGenerationRepository(url, serviceKey string) (*GenerationRepositorySupabase, error) {
	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("supabase: create client: %w", err)
	}
	return &GenerationRepositorySupabase{client: client, now: time.Now}, nil
}

type supabaseGenerationRow struct {
	ID             string          `json:"id"`
	TemplateID     string          `json:"template_id"`
	Mode           string          `json:"mode"`
	Provider       string          `json:"provider"`
	Status         string          `json:"status"`
	OutputImageURL *string         `json:"output_image_url"`
	ErrorMessage   *string         `json:"error_message"`
	Properties     json.RawMessage `json:"properties"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (row supabaseGenerationRow) toDomain() domain.GenerationJob {
	job := domain.GenerationJob{
		ID:         row.ID,
		TemplateID: row.TemplateID,
		Mode:       domain.GenerationMode(row.Mode),
		Provider:   row.Provider,
		Status:     domain.GenerationStatus(row.Status),
		Properties: row.Properties,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.OutputImageURL != nil {
		job.ResultImage = *row.OutputImageURL
	}
	if row.ErrorMessage != nil {
		job.ErrorMessage = *row.ErrorMessage
	}
	return job
}

func (r *GenerationRepositorySupabase) Create(ctx context.Context, in domain.NewGeneration) (domain.GenerationJob, error) {
	if in.TemplateID == "" || !in.Mode.Valid() {
		return domain.GenerationJob{}, domain.NewError(domain.ErrInvalidRequest, "template id and mode are required")
	}
	props := in.Properties
	if props == nil {
		props = map[string]any{}
	}
	now := r.now().UTC().Format(time.RFC3339Nano)
	payload := map[string]any{
		"id":          uuid.NewString(),
		"template_id": in.TemplateID,
		"mode":        string(in.Mode),
		"provider":    in.Provider,
		"status":      string(domain.StatusProcessing),
		"properties":  props,
		"created_at":  now,
		"updated_at":  now,
	}
	data, _, err := r.client.From(generationsTable).
		Insert(payload, false, "", "representation", "").
		Execute()
	if err != nil {
		return domain.GenerationJob{}, domain.Unavailable(fmt.Errorf("supabase: insert generation: %w", err))
	}
	rows, err := decodeGenerationRows(data)
	if err != nil {
		return domain.GenerationJob{}, domain.Unavailable(err)
	}
	if len(rows) == 0 {
		return domain.GenerationJob{}, domain.Unavailable(fmt.Errorf("supabase: insert returned no rows"))
	}
	return rows[0].toDomain(), nil
}

func (r *GenerationRepositorySupabase) Get(ctx context.Context, id string) (domain.GenerationJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.GenerationJob{}, domain.ErrJobNotFound
	}
	data, _, err := r.client.From(generationsTable).
		Select("*", "", false).
		Eq("id", id).
		Execute()
	if err != nil {
		return domain.GenerationJob{}, domain.Unavailable(fmt.Errorf("supabase: select generation: %w", err))
	}
	rows, err := decodeGenerationRows(data)
	if err != nil {
		return domain.GenerationJob{}, domain.Unavailable(err)
	}
	if len(rows) == 0 {
		return domain.GenerationJob{}, domain.ErrJobNotFound
	}
	return rows[0].toDomain(), nil
}

func (r *GenerationRepositorySupabase) TransitionToTerminal(ctx context.Context, id string, out domain.Outcome) (domain.GenerationJob, bool, error) {
	if err := out.Validate(); err != nil {
		return domain.GenerationJob{}, false, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.GenerationJob{}, false, nil
	}
	payload := map[string]any{
		"status":           string(out.Status),
		"output_image_url": nullable(out.ResultImage),
		"error_message":    nullable(out.ErrorMessage),
		"updated_at":       r.now().UTC().Format(time.RFC3339Nano),
	}
	data, _, err := r.client.From(generationsTable).
		Update(payload, "representation", "").
		Eq("id", id).
		Eq("status", string(domain.StatusProcessing)).
		Execute()
	if err != nil {
		return domain.GenerationJob{}, false, domain.Unavailable(fmt.Errorf("supabase: transition generation: %w", err))
	}
	rows, err := decodeGenerationRows(data)
	if err != nil {
		return domain.GenerationJob{}, false, domain.Unavailable(err)
	}
	if len(rows) == 0 {
		return domain.GenerationJob{}, false, nil
	}
	return rows[0].toDomain(), true, nil
}

// MergeProperties is read-modify-write; it only carries audit data so a lost concurrent merge is tolerated.
func (r *GenerationRepositorySupabase) MergeProperties(ctx context.Context, id string, props map[string]any) error {
	if len(props) == 0 {
		return nil
	}
	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	merged := map[string]any{}
	if len(job.Properties) > 0 {
		_ = json.Unmarshal(job.Properties, &merged)
	}
	for k, v := range props {
		merged[k] = v
	}
	_, _, err = r.client.From(generationsTable).
		Update(map[string]any{"properties": merged}, "minimal", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return domain.Unavailable(fmt.Errorf("supabase: merge properties: %w", err))
	}
	return nil
}

func decodeGenerationRows(data []byte) ([]supabaseGenerationRow, error) {
	var rows []supabaseGenerationRow
	if len(data) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("supabase: decode generations: %w", err)
	}
	return rows, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ domain.GenerationStore = (*GenerationRepositorySupabase)(nil)
