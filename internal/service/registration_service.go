package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/models"
	"github.com/noah-isme/gema-contest-api/internal/repository"
)

// RegistrationService enrols users into contests.
type RegistrationService interface {
	Register(ctx context.Context, contestID, userID uint) (dto.RegistrationResponse, error)
}

type registrationService struct {
	contests      repository.ContestRepository
	registrations repository.RegistrationRepository
	logger        zerolog.Logger
	now           func() time.Time
}

// NewRegistrationService constructs the registration service.
func NewRegistrationService(contests repository.ContestRepository, registrations repository.RegistrationRepository, logger zerolog.Logger) RegistrationService {
	return &registrationService{
		contests:      contests,
		registrations: registrations,
		logger:        logger.With().Str("component", "registration_service").Logger(),
		now:           time.Now,
	}
}

// Register creates the registration and its REGISTERED result. Ended contests and full contests are rejected.
func (s *registrationService) Register(ctx context.Context, contestID, userID uint) (dto.RegistrationResponse, error) {
	contest, err := s.contests.GetByID(ctx, contestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RegistrationResponse{}, ErrContestNotFound
		}
		return dto.RegistrationResponse{}, err
	}

	now := s.now().UTC()
	if contest.StatusAt(now) == models.ContestStatusEnded {
		return dto.RegistrationResponse{}, ErrRegistrationClosed
	}

	registration := models.Registration{
		ContestID:    contestID,
		UserID:       userID,
		RegisteredAt: now,
	}
	if err := s.registrations.Register(ctx, &registration, contest.MaxParticipants); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateRegistration):
			return dto.RegistrationResponse{}, ErrAlreadyRegistered
		case errors.Is(err, repository.ErrContestCapacity):
			return dto.RegistrationResponse{}, ErrContestFull
		default:
			return dto.RegistrationResponse{}, err
		}
	}

	s.logger.Info().Uint("contest_id", contestID).Uint("user_id", userID).Msg("user registered for contest")

	return dto.RegistrationResponse{
		ContestID:    registration.ContestID,
		UserID:       registration.UserID,
		RegisteredAt: registration.RegisteredAt,
	}, nil
}
