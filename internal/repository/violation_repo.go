package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

// ViolationRepository is the append-only proctoring audit log.
type ViolationRepository interface {
	Create(ctx context.Context, violation *models.Violation) error
	SetWarningNumber(ctx context.Context, id uint, number int) error
	List(ctx context.Context, contestID uint, userID *uint) ([]models.Violation, error)
}

type violationRepository struct {
	db *gorm.DB
}

// NewViolationRepository constructs a violation repository.
func NewViolationRepository(db *gorm.DB) ViolationRepository {
	return &violationRepository{db: db}
}

func (r *violationRepository) Create(ctx context.Context, violation *models.Violation) error {
	return r.db.WithContext(ctx).Create(violation).Error
}

// SetWarningNumber corrects the number assigned to a freshly appended entry once the
// authoritative counter value is known.
func (r *violationRepository) SetWarningNumber(ctx context.Context, id uint, number int) error {
	return r.db.WithContext(ctx).Model(&models.Violation{}).Where("id = ?", id).UpdateColumn("warning_number", number).Error
}

func (r *violationRepository) List(ctx context.Context, contestID uint, userID *uint) ([]models.Violation, error) {
	query := r.db.WithContext(ctx).Where("contest_id = ?", contestID)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var violations []models.Violation
	if err := query.Order("created_at ASC").Order("id ASC").Find(&violations).Error; err != nil {
		return nil, err
	}
	return violations, nil
}
