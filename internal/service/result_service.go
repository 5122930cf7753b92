package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/models"
	"github.com/noah-isme/gema-contest-api/internal/observability"
	"github.com/noah-isme/gema-contest-api/internal/repository"
)

const maxCASAttempts = 5

// ResultService maintains scored results and the derived leaderboard.
type ResultService interface {
	Begin(ctx context.Context, contestID, userID uint) error
	MergeSubmission(ctx context.Context, submission models.ContestSubmission) (bool, error)
	Finalize(ctx context.Context, contest models.Contest, session models.ContestSession) (models.ContestResult, error)
	Get(ctx context.Context, contestID, userID uint) (models.ContestResult, error)
	Leaderboard(ctx context.Context, contestID uint, limit int) (dto.LeaderboardResponse, error)
	MyRank(ctx context.Context, contestID, userID uint) (dto.LeaderboardEntry, error)
}

type resultService struct {
	results   repository.ResultRepository
	sessions  repository.SessionRepository
	questions repository.QuestionRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	events    EventEmitter
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	rankMu    sync.Mutex
}

// NewResultService constructs the scoring and ranking service.
func NewResultService(results repository.ResultRepository, sessions repository.SessionRepository, questions repository.QuestionRepository, cache *redis.Client, ttl time.Duration, events EventEmitter, logger zerolog.Logger) ResultService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &resultService{
		results:   results,
		sessions:  sessions,
		questions: questions,
		cache:     cache,
		cacheTTL:  ttl,
		events:    events,
		logger:    logger.With().Str("component", "result_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-contest-api/internal/service/results"),
		now:       time.Now,
	}
}

// Begin moves a registered result into IN_PROGRESS once its session starts.
func (s *resultService) Begin(ctx context.Context, contestID, userID uint) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		result, err := s.loadOrCreate(ctx, contestID, userID)
		if err != nil {
			return err
		}
		if result.Status != models.ResultStatusRegistered {
			return nil
		}

		result.Status = models.ResultStatusInProgress
		ok, err := s.results.CompareAndSwap(ctx, &result)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrConcurrentUpdate
}

// MergeSubmission keeps the highest scoring submission per problem. Earlier submissions win ties.
// Nothing is merged once the session or the result is terminal.
func (s *resultService) MergeSubmission(ctx context.Context, submission models.ContestSubmission) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "results.merge_submission", trace.WithAttributes(
		attribute.Int("contest.id", int(submission.ContestID)),
		attribute.Int("problem.id", int(submission.ProblemID)),
	))
	defer span.End()

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		session, err := s.sessions.GetByContestAndUser(ctx, submission.ContestID, submission.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, ErrSessionNotFound
			}
			return false, err
		}
		if session.Status != models.SessionStatusInProgress {
			return false, nil
		}

		result, err := s.loadOrCreate(ctx, submission.ContestID, submission.UserID)
		if err != nil {
			span.RecordError(err)
			return false, err
		}
		if result.Status.IsFinal() {
			return false, nil
		}

		result.Problems = mergeBest(result.Problems, submission)
		result.CodingScore = result.CodingTotal()
		result.TotalScore = result.MCQScore + result.CodingScore

		ok, err := s.results.CompareAndSwap(ctx, &result)
		if err != nil {
			span.RecordError(err)
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	span.SetStatus(codes.Error, "merge retries exhausted")
	return false, ErrConcurrentUpdate
}

// Finalize scores the terminal session and re-derives the contest ranking. A result that is already
// final is returned unchanged.
func (s *resultService) Finalize(ctx context.Context, contest models.Contest, session models.ContestSession) (models.ContestResult, error) {
	ctx, span := s.tracer.Start(ctx, "results.finalize", trace.WithAttributes(
		attribute.Int("contest.id", int(contest.ID)),
		attribute.Int("user.id", int(session.UserID)),
		attribute.String("termination.reason", string(session.TerminationReason)),
	))
	defer span.End()

	mcqScore, marked, err := s.scoreAnswers(ctx, contest, session.MCQAnswers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mcq scoring failed")
		return models.ContestResult{}, err
	}

	status := models.ResultStatusSubmitted
	if session.Status == models.SessionStatusTimedOut {
		status = models.ResultStatusTimedOut
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		result, err := s.loadOrCreate(ctx, contest.ID, session.UserID)
		if err != nil {
			span.RecordError(err)
			return models.ContestResult{}, err
		}
		if result.Status.IsFinal() {
			return result, nil
		}

		result.MCQScore = mcqScore
		result.MCQAnswers = marked
		result.CodingScore = result.CodingTotal()
		result.TotalScore = result.MCQScore + result.CodingScore
		result.TimeTaken = session.TotalTimeSpent
		result.Status = status
		result.TerminationReason = session.TerminationReason
		result.SubmittedAt = session.SubmittedAt

		ok, err := s.results.CompareAndSwap(ctx, &result)
		if err != nil {
			span.RecordError(err)
			return models.ContestResult{}, err
		}
		if !ok {
			continue
		}

		if rank, err := s.rerank(ctx, contest.ID, result.ID); err != nil {
			s.logger.Warn().Err(err).Uint("contest_id", contest.ID).Msg("failed to refresh contest ranks")
		} else if rank > 0 {
			result.Rank = &rank
		}

		s.logger.Info().
			Uint("contest_id", contest.ID).
			Uint("user_id", session.UserID).
			Float64("total_score", result.TotalScore).
			Str("status", string(result.Status)).
			Msg("contest result finalized")
		return result, nil
	}

	span.SetStatus(codes.Error, "finalize retries exhausted")
	return models.ContestResult{}, ErrConcurrentUpdate
}

func (s *resultService) Get(ctx context.Context, contestID, userID uint) (models.ContestResult, error) {
	result, err := s.results.GetByContestAndUser(ctx, contestID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ContestResult{}, ErrResultNotFound
		}
		return models.ContestResult{}, err
	}
	return result, nil
}

// Leaderboard ranks every final result of the contest. A non-positive limit returns all rows.
func (s *resultService) Leaderboard(ctx context.Context, contestID uint, limit int) (dto.LeaderboardResponse, error) {
	response, err := s.leaderboard(ctx, contestID)
	if err != nil {
		return dto.LeaderboardResponse{}, err
	}
	if limit > 0 && len(response.Entries) > limit {
		response.Entries = response.Entries[:limit]
	}
	return response, nil
}

func (s *resultService) MyRank(ctx context.Context, contestID, userID uint) (dto.LeaderboardEntry, error) {
	response, err := s.leaderboard(ctx, contestID)
	if err != nil {
		return dto.LeaderboardEntry{}, err
	}
	for _, entry := range response.Entries {
		if entry.UserID == userID {
			return entry, nil
		}
	}
	return dto.LeaderboardEntry{}, ErrResultNotFound
}

func (s *resultService) leaderboard(ctx context.Context, contestID uint) (dto.LeaderboardResponse, error) {
	cacheKey := leaderboardCacheKey(contestID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.LeaderboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				observability.LeaderboardCache().WithLabelValues("hit").Inc()
				response.CacheHit = true
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read leaderboard cache")
		}
		observability.LeaderboardCache().WithLabelValues("miss").Inc()
	}

	results, err := s.results.ListFinal(ctx, contestID)
	if err != nil {
		return dto.LeaderboardResponse{}, err
	}

	ranked := RankResults(results)
	entries := make([]dto.LeaderboardEntry, 0, len(ranked))
	for _, result := range ranked {
		entries = append(entries, dto.NewLeaderboardEntry(result))
	}

	response := dto.LeaderboardResponse{
		ContestID:    contestID,
		Participants: len(entries),
		Entries:      entries,
		GeneratedAt:  s.now().UTC(),
	}

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store leaderboard cache")
			}
		}
	}

	return response, nil
}

// rerank persists ranks for the whole contest and returns the rank of the given result.
func (s *resultService) rerank(ctx context.Context, contestID, resultID uint) (int, error) {
	s.rankMu.Lock()
	defer s.rankMu.Unlock()
	// The cached board is stale once a result turns final, even when ranking fails.
	defer s.invalidateLeaderboard(ctx, contestID)

	results, err := s.results.ListFinal(ctx, contestID)
	if err != nil {
		return 0, err
	}

	ranked := RankResults(results)
	ranks := make(map[uint]int, len(ranked))
	own := 0
	for _, result := range ranked {
		ranks[result.ID] = *result.Rank
		if result.ID == resultID {
			own = *result.Rank
		}
	}
	if err := s.results.UpdateRanks(ctx, ranks); err != nil {
		return 0, err
	}

	emit(ctx, s.events, dto.ContestEvent{
		Type:      dto.EventLeaderboardUpdated,
		ContestID: contestID,
		Data:      map[string]interface{}{"participants": len(ranked)},
	})

	return own, nil
}

func (s *resultService) invalidateLeaderboard(ctx context.Context, contestID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, leaderboardCacheKey(contestID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("contest_id", contestID).Msg("failed to invalidate leaderboard cache")
	}
}

func (s *resultService) scoreAnswers(ctx context.Context, contest models.Contest, answers []models.MCQAnswer) (float64, []models.MCQAnswerResult, error) {
	if !contest.MCQEnabled || len(answers) == 0 {
		return 0, []models.MCQAnswerResult{}, nil
	}

	ids := make([]uint, 0, len(answers))
	for _, answer := range answers {
		ids = append(ids, answer.QuestionID)
	}

	questions, err := s.questions.ListByIDs(ctx, contest.ID, ids)
	if err != nil {
		return 0, nil, fmt.Errorf("load questions: %w", err)
	}

	score, marked := ScoreMCQ(answers, questions)
	return score, marked, nil
}

// loadOrCreate returns the participant's result, creating a REGISTERED row for participants that predate results.
func (s *resultService) loadOrCreate(ctx context.Context, contestID, userID uint) (models.ContestResult, error) {
	result, err := s.results.GetByContestAndUser(ctx, contestID, userID)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ContestResult{}, err
	}

	result = models.ContestResult{
		ContestID:  contestID,
		UserID:     userID,
		Status:     models.ResultStatusRegistered,
		MCQAnswers: []models.MCQAnswerResult{},
		Problems:   []models.ProblemBest{},
	}
	if createErr := s.results.Create(ctx, &result); createErr != nil {
		existing, getErr := s.results.GetByContestAndUser(ctx, contestID, userID)
		if getErr != nil {
			return models.ContestResult{}, createErr
		}
		return existing, nil
	}
	return result, nil
}

func mergeBest(problems []models.ProblemBest, submission models.ContestSubmission) []models.ProblemBest {
	merged := append([]models.ProblemBest(nil), problems...)
	accepted := submission.Verdict == models.VerdictAccepted

	for i := range merged {
		if merged[i].ProblemID != submission.ProblemID {
			continue
		}
		merged[i].Attempts++
		merged[i].Solved = merged[i].Solved || accepted
		if submission.Score > merged[i].Score {
			merged[i].SubmissionID = submission.ID
			merged[i].Score = submission.Score
			merged[i].Verdict = submission.Verdict
			merged[i].SubmittedAt = submission.CreatedAt
		}
		return merged
	}

	return append(merged, models.ProblemBest{
		ProblemID:    submission.ProblemID,
		SubmissionID: submission.ID,
		Score:        submission.Score,
		Verdict:      submission.Verdict,
		Attempts:     1,
		Solved:       accepted,
		SubmittedAt:  submission.CreatedAt,
	})
}

func leaderboardCacheKey(contestID uint) string {
	return fmt.Sprintf("contest:leaderboard:%d", contestID)
}
