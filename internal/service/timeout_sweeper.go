package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/models"
	"github.com/noah-isme/gema-contest-api/internal/repository"
)

const sweepBatchSize = 500

// TimeoutSweeper periodically times out sessions whose allowance has run out.
type TimeoutSweeper struct {
	sessions   repository.SessionRepository
	contests   repository.ContestRepository
	terminator SessionTerminator
	interval   time.Duration
	batchSize  int
	logger     zerolog.Logger
	now        func() time.Time
}

// NewTimeoutSweeper constructs a sweeper. A non-positive interval falls back to fifteen seconds.
func NewTimeoutSweeper(sessions repository.SessionRepository, contests repository.ContestRepository, terminator SessionTerminator, interval time.Duration, logger zerolog.Logger) *TimeoutSweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &TimeoutSweeper{
		sessions:   sessions,
		contests:   contests,
		terminator: terminator,
		interval:   interval,
		batchSize:  sweepBatchSize,
		logger:     logger.With().Str("component", "timeout_sweeper").Logger(),
		now:        time.Now,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *TimeoutSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Error().Err(err).Msg("timeout sweep failed")
				}
			}
		}
	}()
}

// Sweep terminates every overdue in-progress session once and reports how many it ended.
// It pages through every in-progress session. Sessions that another transition ended first
// are skipped.
func (s *TimeoutSweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	contests := make(map[uint]models.Contest)
	terminated := 0
	afterID := uint(0)

	for {
		sessions, err := s.sessions.ListInProgress(ctx, afterID, s.batchSize)
		if err != nil {
			return terminated, err
		}

		for _, session := range sessions {
			contest, ok := contests[session.ContestID]
			if !ok {
				contest, err = s.contests.GetByID(ctx, session.ContestID)
				if err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						s.logger.Warn().Uint("contest_id", session.ContestID).Msg("session references missing contest")
						continue
					}
					return terminated, err
				}
				contests[session.ContestID] = contest
			}

			if now.Before(sessionDeadline(contest, session)) {
				continue
			}

			won, err := s.terminator.ForceTerminate(ctx, session.ID, models.TerminationTimeout)
			if err != nil {
				s.logger.Warn().Err(err).Uint("session_id", session.ID).Msg("failed to time out session")
			}
			if won {
				terminated++
			}
		}

		if len(sessions) < s.batchSize {
			break
		}
		afterID = sessions[len(sessions)-1].ID
	}

	if terminated > 0 {
		s.logger.Info().Int("terminated", terminated).Msg("timed out expired sessions")
	}
	return terminated, nil
}
