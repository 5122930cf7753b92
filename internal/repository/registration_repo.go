package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

// ErrDuplicateRegistration indicates the (contest, user) pair is already registered.
var ErrDuplicateRegistration = errors.New("registration already exists")

// ErrContestCapacity indicates the contest reached its participant cap.
var ErrContestCapacity = errors.New("contest is full")

// RegistrationRepository persists contest registrations together with their initial result row.
type RegistrationRepository interface {
	Exists(ctx context.Context, contestID, userID uint) (bool, error)
	Count(ctx context.Context, contestID uint) (int64, error)
	Register(ctx context.Context, registration *models.Registration, capacity int) error
}

type registrationRepository struct {
	db *gorm.DB
}

// NewRegistrationRepository constructs a registration repository.
func NewRegistrationRepository(db *gorm.DB) RegistrationRepository {
	return &registrationRepository{db: db}
}

func (r *registrationRepository) Exists(ctx context.Context, contestID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Registration{}).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *registrationRepository) Count(ctx context.Context, contestID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Registration{}).
		Where("contest_id = ?", contestID).
		Count(&count).Error
	return count, err
}

// Register inserts the registration and a REGISTERED result in one transaction.
// A capacity of zero or less means unlimited. The capacity check runs under a row lock on the
// contest so concurrent registrations cannot overfill it.
func (r *registrationRepository) Register(ctx context.Context, registration *models.Registration, capacity int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if capacity > 0 {
			// Concurrent registrations for the same contest queue on the contest row lock.
			var contest models.Contest
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&contest, registration.ContestID).Error; err != nil {
				return err
			}

			var count int64
			if err := tx.Model(&models.Registration{}).Where("contest_id = ?", registration.ContestID).Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(capacity) {
				return ErrContestCapacity
			}
		}

		insert := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(registration)
		if insert.Error != nil {
			return insert.Error
		}
		if insert.RowsAffected == 0 {
			return ErrDuplicateRegistration
		}

		result := models.ContestResult{
			ContestID: registration.ContestID,
			UserID:    registration.UserID,
			Status:    models.ResultStatusRegistered,
			Version:   1,
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&result).Error
	})
}
