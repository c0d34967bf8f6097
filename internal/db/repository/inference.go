package repository

import (
	"context"
	"fmt"

	"github.com/cozy-creator/summarize-server/internal/db/models"

	"github.com/uptrace/bun"
)

type IInferenceRepository interface {
	Repository[models.Inference]
	WithTx(tx *bun.Tx) IInferenceRepository
	ListRecent(ctx context.Context, limit int) ([]models.Inference, error)
	CountByStatus(ctx context.Context, status models.InferenceStatus) (int, error)
}

type InferenceRepository struct {
	db bun.IDB
}

func NewInferenceRepository(db *bun.DB) IInferenceRepository {
	return &InferenceRepository{db: db}
}

func (r *InferenceRepository) Create(ctx context.Context, inference *models.Inference) (*models.Inference, error) {
	if inference == nil {
		return nil, fmt.Errorf("inference model is nil")
	}

	if _, err := r.db.NewInsert().Model(inference).Exec(ctx); err != nil {
		return nil, err
	}

	return inference, nil
}

func (r *InferenceRepository) GetByID(ctx context.Context, id string) (*models.Inference, error) {
	var inference models.Inference
	if err := r.db.NewSelect().Model(&inference).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}

	return &inference, nil
}

func (r *InferenceRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model((*models.Inference)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *InferenceRepository) ListRecent(ctx context.Context, limit int) ([]models.Inference, error) {
	var inferences []models.Inference
	err := r.db.NewSelect().
		Model(&inferences).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	return inferences, err
}

func (r *InferenceRepository) CountByStatus(ctx context.Context, status models.InferenceStatus) (int, error) {
	return r.db.NewSelect().Model((*models.Inference)(nil)).Where("status = ?", status).Count(ctx)
}

func (r *InferenceRepository) WithTx(tx *bun.Tx) IInferenceRepository {
	return &InferenceRepository{db: tx}
}
