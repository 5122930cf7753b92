package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

var submissionVerdictColumns = []string{
	"verdict",
	"score",
	"testcases_passed",
	"testcases_total",
	"results",
	"compile_output",
	"partial_failure",
	"graded_at",
	"updated_at",
}

// ContestSubmissionFilter narrows submission listings.
type ContestSubmissionFilter struct {
	ContestID uint
	UserID    uint
	ProblemID *uint
	Limit     int
}

// ContestSubmissionRepository is the append-only store of graded submissions.
type ContestSubmissionRepository interface {
	Create(ctx context.Context, submission *models.ContestSubmission) error
	RecordVerdict(ctx context.Context, submission *models.ContestSubmission) (bool, error)
	GetByID(ctx context.Context, id uint) (models.ContestSubmission, error)
	List(ctx context.Context, filter ContestSubmissionFilter) ([]models.ContestSubmission, error)
}

type contestSubmissionRepository struct {
	db *gorm.DB
}

// NewContestSubmissionRepository constructs the repository.
func NewContestSubmissionRepository(db *gorm.DB) ContestSubmissionRepository {
	return &contestSubmissionRepository{db: db}
}

func (r *contestSubmissionRepository) Create(ctx context.Context, submission *models.ContestSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

// RecordVerdict finalizes a pending submission. Already graded rows are left untouched.
func (r *contestSubmissionRepository) RecordVerdict(ctx context.Context, submission *models.ContestSubmission) (bool, error) {
	next := *submission
	next.ID = 0

	tx := r.db.WithContext(ctx).Model(&models.ContestSubmission{}).
		Where("id = ? AND verdict = ?", submission.ID, models.VerdictPending).
		Select(submissionVerdictColumns).
		Updates(&next)
	if tx.Error != nil {
		return false, tx.Error
	}
	submission.UpdatedAt = next.UpdatedAt
	return tx.RowsAffected > 0, nil
}

func (r *contestSubmissionRepository) GetByID(ctx context.Context, id uint) (models.ContestSubmission, error) {
	var submission models.ContestSubmission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.ContestSubmission{}, err
	}
	return submission, nil
}

func (r *contestSubmissionRepository) List(ctx context.Context, filter ContestSubmissionFilter) ([]models.ContestSubmission, error) {
	query := r.db.WithContext(ctx).Model(&models.ContestSubmission{}).
		Where("contest_id = ? AND user_id = ?", filter.ContestID, filter.UserID)

	if filter.ProblemID != nil {
		query = query.Where("problem_id = ?", *filter.ProblemID)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var submissions []models.ContestSubmission
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}
