package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

// ProblemRepository is the read side of the problem library plus submission counters.
type ProblemRepository interface {
	GetByID(ctx context.Context, id uint) (models.Problem, error)
	IncrementCounters(ctx context.Context, id uint, accepted bool) error
}

type problemRepository struct {
	db *gorm.DB
}

// NewProblemRepository constructs a problem repository.
func NewProblemRepository(db *gorm.DB) ProblemRepository {
	return &problemRepository{db: db}
}

func (r *problemRepository) GetByID(ctx context.Context, id uint) (models.Problem, error) {
	var problem models.Problem
	err := r.db.WithContext(ctx).
		Preload("TestCases", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("id ASC")
		}).
		First(&problem, id).Error
	if err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}

func (r *problemRepository) IncrementCounters(ctx context.Context, id uint, accepted bool) error {
	updates := map[string]interface{}{
		"submission_count": gorm.Expr("submission_count + ?", 1),
	}
	if accepted {
		updates["accepted_count"] = gorm.Expr("accepted_count + ?", 1)
	}
	return r.db.WithContext(ctx).Model(&models.Problem{}).Where("id = ?", id).UpdateColumns(updates).Error
}
