package repo

import (
	"context"
	"fmt"

	"stylegen/internal/domain"
	"stylegen/internal/infra"
	"stylegen/internal/sqlinline"
)

// TemplateRepositoryPG reads and writes the templates table.
type TemplateRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewTemplateRepository(sql infra.SQLExecutor) *TemplateRepositoryPG {
	return &TemplateRepositoryPG{sql: sql}
}

// FindTemplate implements domain.TemplateSource.
func (r *TemplateRepositoryPG) FindTemplate(ctx context.Context, id string) (domain.Template, error) {
	var (
		tpl  domain.Template
		mode string
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectTemplate, id).Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.Prompt,
		&tpl.Provider.Kind,
		&tpl.Provider.Model,
		&mode,
		&tpl.EnhanceWithSubject,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.Template{}, domain.ErrTemplateNotFound
		}
		return domain.Template{}, domain.Unavailable(fmt.Errorf("select template: %w", err))
	}
	tpl.Provider.Mode = domain.GenerationMode(mode)
	return tpl, nil
}

// Upsert stores a normalized template.
func (r *TemplateRepositoryPG) Upsert(ctx context.Context, tpl domain.Template) error {
	if err := tpl.Normalize(); err != nil {
		return err
	}
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertTemplate,
		tpl.ID,
		tpl.Name,
		tpl.Prompt,
		tpl.Provider.Kind,
		tpl.Provider.Model,
		string(tpl.Provider.Mode),
		tpl.EnhanceWithSubject,
	)
	if err != nil {
		return fmt.Errorf("upsert template %s: %w", tpl.ID, err)
	}
	return nil
}

var _ domain.TemplateSource = (*TemplateRepositoryPG)(nil)
