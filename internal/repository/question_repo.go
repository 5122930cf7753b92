package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

// QuestionRepository reads the MCQ bank of a contest.
type QuestionRepository interface {
	ListByIDs(ctx context.Context, contestID uint, ids []uint) ([]models.Question, error)
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository constructs a question repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) ListByIDs(ctx context.Context, contestID uint, ids []uint) ([]models.Question, error) {
	if len(ids) == 0 {
		return []models.Question{}, nil
	}
	var questions []models.Question
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND id IN ?", contestID, ids).
		Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}
