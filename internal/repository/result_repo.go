package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

var resultMutableColumns = []string{
	"mcq_score",
	"mcq_answers",
	"coding_score",
	"problems",
	"total_score",
	"time_taken",
	"status",
	"termination_reason",
	"submitted_at",
	"version",
	"updated_at",
}

// ResultRepository persists scored contest outcomes.
type ResultRepository interface {
	GetByContestAndUser(ctx context.Context, contestID, userID uint) (models.ContestResult, error)
	Create(ctx context.Context, result *models.ContestResult) error
	CompareAndSwap(ctx context.Context, result *models.ContestResult) (bool, error)
	ListFinal(ctx context.Context, contestID uint) ([]models.ContestResult, error)
	UpdateRanks(ctx context.Context, ranks map[uint]int) error
}

type resultRepository struct {
	db *gorm.DB
}

// NewResultRepository constructs a result repository.
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) GetByContestAndUser(ctx context.Context, contestID, userID uint) (models.ContestResult, error) {
	var result models.ContestResult
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		First(&result).Error
	if err != nil {
		return models.ContestResult{}, err
	}
	return result, nil
}

func (r *resultRepository) Create(ctx context.Context, result *models.ContestResult) error {
	if result.Version == 0 {
		result.Version = 1
	}
	return r.db.WithContext(ctx).Create(result).Error
}

// CompareAndSwap writes the scoring columns when the stored version still matches.
func (r *resultRepository) CompareAndSwap(ctx context.Context, result *models.ContestResult) (bool, error) {
	next := *result
	next.ID = 0
	next.Version = result.Version + 1

	tx := r.db.WithContext(ctx).Model(&models.ContestResult{}).
		Where("id = ? AND version = ?", result.ID, result.Version).
		Select(resultMutableColumns).
		Updates(&next)
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected == 0 {
		return false, nil
	}

	result.Version = next.Version
	result.UpdatedAt = next.UpdatedAt
	return true, nil
}

// ListFinal returns every scored result of the contest.
func (r *resultRepository) ListFinal(ctx context.Context, contestID uint) ([]models.ContestResult, error) {
	var results []models.ContestResult
	err := r.db.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Where("status IN ?", []models.ResultStatus{models.ResultStatusSubmitted, models.ResultStatusTimedOut}).
		Order("id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateRanks stores derived ranks keyed by result id. Ranks do not bump the version.
func (r *resultRepository) UpdateRanks(ctx context.Context, ranks map[uint]int) error {
	if len(ranks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, rank := range ranks {
			if err := tx.Model(&models.ContestResult{}).Where("id = ?", id).UpdateColumn("rank", rank).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
