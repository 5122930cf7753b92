package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

// sessionMutableColumns are the columns a compare-and-swap is allowed to rewrite.
// started_at is immutable and warning_count only moves through IncrementWarnings.
var sessionMutableColumns = []string{
	"submitted_at",
	"total_time_spent",
	"status",
	"termination_reason",
	"question_times",
	"problem_times",
	"mcq_section_seconds",
	"coding_section_seconds",
	"mcq_answers",
	"version",
	"updated_at",
}

// SessionRepository stores contest sessions with optimistic concurrency.
type SessionRepository interface {
	CreateIfAbsent(ctx context.Context, session *models.ContestSession) (bool, error)
	GetByID(ctx context.Context, id uint) (models.ContestSession, error)
	GetByContestAndUser(ctx context.Context, contestID, userID uint) (models.ContestSession, error)
	CompareAndSwap(ctx context.Context, session *models.ContestSession, expected models.SessionStatus) (bool, error)
	IncrementWarnings(ctx context.Context, id uint) (int, bool, error)
	ListInProgress(ctx context.Context, afterID uint, limit int) ([]models.ContestSession, error)
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository constructs a session repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// CreateIfAbsent inserts the session unless one already exists for the pair.
func (r *sessionRepository) CreateIfAbsent(ctx context.Context, session *models.ContestSession) (bool, error) {
	if session.Version == 0 {
		session.Version = 1
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(session)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id uint) (models.ContestSession, error) {
	var session models.ContestSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return models.ContestSession{}, err
	}
	return session, nil
}

func (r *sessionRepository) GetByContestAndUser(ctx context.Context, contestID, userID uint) (models.ContestSession, error) {
	var session models.ContestSession
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		First(&session).Error
	if err != nil {
		return models.ContestSession{}, err
	}
	return session, nil
}

// CompareAndSwap persists the mutable fields of session only when the stored row still has
// the expected status and the version the caller read. It returns false when another writer won.
func (r *sessionRepository) CompareAndSwap(ctx context.Context, session *models.ContestSession, expected models.SessionStatus) (bool, error) {
	next := *session
	next.ID = 0
	next.Version = session.Version + 1

	result := r.db.WithContext(ctx).Model(&models.ContestSession{}).
		Where("id = ? AND status = ? AND version = ?", session.ID, expected, session.Version).
		Select(sessionMutableColumns).
		Updates(&next)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	session.Version = next.Version
	session.UpdatedAt = next.UpdatedAt
	return true, nil
}

// IncrementWarnings atomically bumps the warning counter of an in-progress session and returns the
// value this call produced. It reports false when the session is no longer in progress.
func (r *sessionRepository) IncrementWarnings(ctx context.Context, id uint) (int, bool, error) {
	var count int
	var updated bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ContestSession{}).
			Where("id = ? AND status = ?", id, models.SessionStatusInProgress).
			Updates(map[string]interface{}{
				"warning_count": gorm.Expr("warning_count + ?", 1),
				"version":       gorm.Expr("version + ?", 1),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		var counts []int
		if err := tx.Model(&models.ContestSession{}).Where("id = ?", id).Pluck("warning_count", &counts).Error; err != nil {
			return err
		}
		if len(counts) > 0 {
			count = counts[0]
		}
		updated = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return count, updated, nil
}

// ListInProgress pages through in-progress sessions in id order, starting after afterID.
func (r *sessionRepository) ListInProgress(ctx context.Context, afterID uint, limit int) ([]models.ContestSession, error) {
	if limit <= 0 {
		limit = 500
	}
	var sessions []models.ContestSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND id > ?", models.SessionStatusInProgress, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
