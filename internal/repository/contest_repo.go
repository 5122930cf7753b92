package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

// ContestRepository reads contest definitions. Contest administration lives outside this service.
type ContestRepository interface {
	GetByID(ctx context.Context, id uint) (models.Contest, error)
	Create(ctx context.Context, contest *models.Contest) error
}

type contestRepository struct {
	db *gorm.DB
}

// NewContestRepository constructs a contest repository.
func NewContestRepository(db *gorm.DB) ContestRepository {
	return &contestRepository{db: db}
}

func (r *contestRepository) GetByID(ctx context.Context, id uint) (models.Contest, error) {
	var contest models.Contest
	if err := r.db.WithContext(ctx).First(&contest, id).Error; err != nil {
		return models.Contest{}, err
	}
	return contest, nil
}

func (r *contestRepository) Create(ctx context.Context, contest *models.Contest) error {
	return r.db.WithContext(ctx).Create(contest).Error
}
