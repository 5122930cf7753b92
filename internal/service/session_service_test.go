package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/models"
	"github.com/noah-isme/gema-contest-api/internal/repository"
)

// flakyQuestions fails the next failures question lookups before delegating.
type flakyQuestions struct {
	repository.QuestionRepository
	mu       sync.Mutex
	failures int
}

func (q *flakyQuestions) ListByIDs(ctx context.Context, contestID uint, ids []uint) ([]models.Question, error) {
	q.mu.Lock()
	if q.failures > 0 {
		q.failures--
		q.mu.Unlock()
		return nil, errors.New("db blip")
	}
	q.mu.Unlock()
	return q.QuestionRepository.ListByIDs(ctx, contestID, ids)
}

func TestSessionStartIsIdempotent(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)

	first := f.start(t, contest.ID, 7)
	require.Equal(t, string(models.SessionStatusInProgress), first.Status)
	require.Equal(t, int64(3600), first.RemainingSeconds)

	f.clock.Advance(5 * time.Minute)
	second, err := f.sessions.Start(context.Background(), contest.ID, 7)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.True(t, first.StartedAt.Equal(second.StartedAt))
	require.Equal(t, int64(3300), second.RemainingSeconds)

	result := f.result(t, contest.ID, 7)
	require.Equal(t, models.ResultStatusInProgress, result.Status)
	require.Equal(t, []string{dto.EventSessionStarted}, f.events.types())
}

func TestSessionStartRequiresRegistration(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)

	_, err := f.sessions.Start(context.Background(), contest.ID, 7)
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestSessionStartRequiresLiveContest(t *testing.T) {
	f := newContestFixture(t)
	upcoming := f.seedContest(t, func(c *models.Contest) {
		c.StartTime = contestEpoch.Add(time.Hour)
		c.EndTime = contestEpoch.Add(3 * time.Hour)
	})
	f.register(t, upcoming.ID, 7)

	_, err := f.sessions.Start(context.Background(), upcoming.ID, 7)
	require.ErrorIs(t, err, ErrContestNotLive)

	_, err = f.sessions.Start(context.Background(), 999, 7)
	require.ErrorIs(t, err, ErrContestNotFound)
}

func TestTrackTimeAccumulatesAndClampsToRemaining(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	f.start(t, contest.ID, 7)
	ctx := context.Background()

	_, err := f.sessions.TrackTime(ctx, contest.ID, 7, dto.TrackTimeRequest{Kind: TrackKindQuestion, TargetID: 5, Seconds: 30})
	require.NoError(t, err)
	progress, err := f.sessions.TrackTime(ctx, contest.ID, 7, dto.TrackTimeRequest{Kind: TrackKindQuestion, TargetID: 5, Seconds: 45})
	require.NoError(t, err)
	require.Equal(t, int64(75), progress.QuestionTimes["5"])

	f.clock.Advance(59 * time.Minute)
	progress, err = f.sessions.TrackTime(ctx, contest.ID, 7, dto.TrackTimeRequest{Kind: TrackKindCodingSection, Seconds: 100000})
	require.NoError(t, err)
	require.Equal(t, int64(60), progress.CodingSectionSeconds)

	_, err = f.sessions.TrackTime(ctx, contest.ID, 7, dto.TrackTimeRequest{Kind: TrackKindProblem, Seconds: 10})
	require.ErrorIs(t, err, ErrTrackTargetRequired)

	_, err = f.sessions.TrackTime(ctx, contest.ID, 7, dto.TrackTimeRequest{Kind: "lunch", Seconds: 10})
	require.Error(t, err)

	stored := f.session(t, contest.ID, 7)
	require.Equal(t, int64(75), stored.QuestionTimes["5"])
	require.Equal(t, int64(60), stored.CodingSectionSeconds)
}

func TestTerminalSessionRejectsFurtherMutation(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	f.start(t, contest.ID, 7)
	ctx := context.Background()

	f.clock.Advance(10 * time.Minute)
	submitted, err := f.sessions.FinalSubmit(ctx, contest.ID, 7, dto.FinalSubmitRequest{})
	require.NoError(t, err)
	require.False(t, submitted.AlreadySubmitted)
	before := f.session(t, contest.ID, 7)

	_, err = f.sessions.TrackTime(ctx, contest.ID, 7, dto.TrackTimeRequest{Kind: TrackKindMCQSection, Seconds: 10})
	require.ErrorIs(t, err, ErrSessionTerminal)

	_, err = f.sessions.SaveAnswers(ctx, contest.ID, 7, dto.SaveAnswersRequest{Answers: []dto.MCQAnswerInput{{QuestionID: 1, SelectedOptions: []string{"a"}}}})
	require.ErrorIs(t, err, ErrSessionTerminal)

	_, err = f.proctoring.ReportViolation(ctx, contest.ID, 7, dto.ViolationRequest{Type: string(models.ViolationTabSwitch)})
	require.ErrorIs(t, err, ErrSessionTerminal)

	f.clock.Advance(time.Minute)
	again, err := f.sessions.FinalSubmit(ctx, contest.ID, 7, dto.FinalSubmitRequest{Answers: []dto.MCQAnswerInput{{QuestionID: 1, SelectedOptions: []string{"a"}}}})
	require.NoError(t, err)
	require.True(t, again.AlreadySubmitted)
	require.True(t, submitted.Session.SubmittedAt.Equal(*again.Session.SubmittedAt))

	after := f.session(t, contest.ID, 7)
	require.Equal(t, before.Version, after.Version)
	require.Equal(t, before.WarningCount, after.WarningCount)
	require.Empty(t, after.MCQAnswers)
	require.Equal(t, 1, f.results.calls())
}

func TestFinalSubmitScoresSubmissionsAndAnswers(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	questions := f.seedQuestions(t, contest.ID)
	problem := f.seedProblem(t, contest.ID)
	f.start(t, contest.ID, 7)
	ctx := context.Background()

	submission, err := f.submissionService(echoJudge).Submit(ctx, contest.ID, 7, dto.CodeSubmissionRequest{
		ProblemID: problem.ID,
		Language:  "python",
		Source:    "print(input())",
	})
	require.NoError(t, err)
	require.Equal(t, string(models.VerdictAccepted), submission.Verdict)
	require.Equal(t, 100.0, submission.Score)

	f.clock.Advance(10 * time.Minute)
	outcome, err := f.sessions.FinalSubmit(ctx, contest.ID, 7, dto.FinalSubmitRequest{Answers: []dto.MCQAnswerInput{
		{QuestionID: questions[0].ID, SelectedOptions: []string{"c", "a"}},
		{QuestionID: questions[1].ID, SelectedOptions: []string{"b"}},
	}})
	require.NoError(t, err)

	require.Equal(t, string(models.SessionStatusSubmitted), outcome.Session.Status)
	require.Equal(t, string(models.TerminationCompleted), outcome.Session.TerminationReason)
	require.Equal(t, int64(600), outcome.Session.TotalTimeSpent)
	require.Equal(t, 3.5, outcome.Result.MCQScore)
	require.Equal(t, 100.0, outcome.Result.CodingScore)
	require.Equal(t, 103.5, outcome.Result.TotalScore)
	require.Equal(t, int64(600), outcome.Result.TimeTaken)
	require.NotNil(t, outcome.Result.Rank)
	require.Equal(t, 1, *outcome.Result.Rank)

	stored := f.result(t, contest.ID, 7)
	require.Equal(t, models.ResultStatusSubmitted, stored.Status)
	require.Len(t, stored.MCQAnswers, 2)
}

func TestFinalSubmitWithoutAnswersUsesDraft(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	questions := f.seedQuestions(t, contest.ID)
	f.start(t, contest.ID, 7)
	ctx := context.Background()

	_, err := f.sessions.SaveAnswers(ctx, contest.ID, 7, dto.SaveAnswersRequest{Answers: []dto.MCQAnswerInput{
		{QuestionID: questions[1].ID, SelectedOptions: []string{"a"}},
	}})
	require.NoError(t, err)

	outcome, err := f.sessions.FinalSubmit(ctx, contest.ID, 7, dto.FinalSubmitRequest{})
	require.NoError(t, err)
	require.Equal(t, 2.0, outcome.Result.MCQScore)
}

func TestFinalSubmitAfterDeadlineIsTimedOut(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	questions := f.seedQuestions(t, contest.ID)
	f.start(t, contest.ID, 7)

	f.clock.Advance(75 * time.Minute)
	outcome, err := f.sessions.FinalSubmit(context.Background(), contest.ID, 7, dto.FinalSubmitRequest{Answers: []dto.MCQAnswerInput{
		{QuestionID: questions[1].ID, SelectedOptions: []string{"a"}},
	}})
	require.NoError(t, err)
	require.Equal(t, string(models.SessionStatusTimedOut), outcome.Session.Status)
	require.Equal(t, int64(3600), outcome.Session.TotalTimeSpent)
	require.Zero(t, outcome.Result.MCQScore)
	require.Equal(t, string(models.ResultStatusTimedOut), outcome.Result.Status)
}

func TestTimeoutSweepAndFinalSubmitRaceScoresOnce(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	f.start(t, contest.ID, 7)
	session := f.session(t, contest.ID, 7)
	ctx := context.Background()

	var (
		wg           sync.WaitGroup
		terminated   bool
		terminateErr error
		submitted    dto.FinalSubmitResponse
		submitErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		terminated, terminateErr = f.sessions.ForceTerminate(ctx, session.ID, models.TerminationTimeout)
	}()
	go func() {
		defer wg.Done()
		submitted, submitErr = f.sessions.FinalSubmit(ctx, contest.ID, 7, dto.FinalSubmitRequest{})
	}()
	wg.Wait()

	require.NoError(t, terminateErr)
	require.NoError(t, submitErr)
	// The losing caller may finalize too when it reads the result before the winner stores it.
	require.GreaterOrEqual(t, f.results.calls(), 1)
	require.LessOrEqual(t, f.results.calls(), 2)

	final := f.session(t, contest.ID, 7)
	result := f.result(t, contest.ID, 7)
	if terminated {
		require.True(t, submitted.AlreadySubmitted)
		require.Equal(t, models.SessionStatusTimedOut, final.Status)
		require.Equal(t, models.TerminationTimeout, final.TerminationReason)
		require.Equal(t, models.ResultStatusTimedOut, result.Status)
	} else {
		require.False(t, submitted.AlreadySubmitted)
		require.Equal(t, models.SessionStatusSubmitted, final.Status)
		require.Equal(t, models.TerminationCompleted, final.TerminationReason)
		require.Equal(t, models.ResultStatusSubmitted, result.Status)
	}
}

func TestProgressExpiresOverdueSession(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	f.start(t, contest.ID, 7)

	f.clock.Advance(61 * time.Minute)
	progress, err := f.sessions.Progress(context.Background(), contest.ID, 7)
	require.NoError(t, err)
	require.Equal(t, string(models.SessionStatusTimedOut), progress.Session.Status)
	require.Zero(t, progress.Session.RemainingSeconds)
	require.Equal(t, 1, f.results.calls())
}

func TestTimeBreakdownIncludesViolations(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	f.start(t, contest.ID, 7)
	ctx := context.Background()

	_, err := f.sessions.TrackTime(ctx, contest.ID, 7, dto.TrackTimeRequest{Kind: TrackKindProblem, TargetID: 3, Seconds: 120})
	require.NoError(t, err)
	_, err = f.proctoring.ReportViolation(ctx, contest.ID, 7, dto.ViolationRequest{Type: string(models.ViolationWindowBlur)})
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	breakdown, err := f.sessions.TimeBreakdown(ctx, contest.ID, 7)
	require.NoError(t, err)
	require.Equal(t, int64(1200), breakdown.ElapsedSeconds)
	require.Equal(t, int64(120), breakdown.ProblemTimes["3"])
	require.Equal(t, 1, breakdown.WarningCount)
	require.Len(t, breakdown.Violations, 1)

	_, err = f.sessions.TimeBreakdown(ctx, contest.ID, 8)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTimeoutSweeperEndsOnlyExpiredSessions(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	f.start(t, contest.ID, 7)
	f.clock.Advance(30 * time.Minute)
	f.start(t, contest.ID, 8)

	sweeper := NewTimeoutSweeper(f.sessionRepo, f.contests, f.sessions, time.Second, f.sessions.logger)
	sweeper.now = f.clock.Now

	ended, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, ended)

	f.clock.Advance(31 * time.Minute)
	ended, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, ended)

	expired := f.session(t, contest.ID, 7)
	require.Equal(t, models.SessionStatusTimedOut, expired.Status)
	require.Equal(t, int64(3600), expired.TotalTimeSpent)
	require.Equal(t, models.SessionStatusInProgress, f.session(t, contest.ID, 8).Status)

	ended, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, ended)
}

func TestFinalSubmitRetryFinalizesAfterFailedScoring(t *testing.T) {
	f := newContestFixture(t)
	f.wire(&flakyQuestions{QuestionRepository: f.questionRepo, failures: 1})
	contest := f.seedContest(t, nil)
	questions := f.seedQuestions(t, contest.ID)
	f.start(t, contest.ID, 7)
	ctx := context.Background()

	answers := []dto.MCQAnswerInput{{QuestionID: questions[1].ID, SelectedOptions: []string{"a"}}}
	_, err := f.sessions.FinalSubmit(ctx, contest.ID, 7, dto.FinalSubmitRequest{Answers: answers})
	require.Error(t, err)
	require.Equal(t, models.SessionStatusSubmitted, f.session(t, contest.ID, 7).Status)
	require.Equal(t, models.ResultStatusInProgress, f.result(t, contest.ID, 7).Status)

	retry, err := f.sessions.FinalSubmit(ctx, contest.ID, 7, dto.FinalSubmitRequest{})
	require.NoError(t, err)
	require.True(t, retry.AlreadySubmitted)
	require.Equal(t, string(models.ResultStatusSubmitted), retry.Result.Status)
	require.Equal(t, 2.0, retry.Result.MCQScore)

	board, err := f.results.Leaderboard(ctx, contest.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 1, board.Participants)

	_, err = f.sessions.FinalSubmit(ctx, contest.ID, 7, dto.FinalSubmitRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, f.results.calls())
}

func TestForceTerminateRepairsUnfinalizedResult(t *testing.T) {
	f := newContestFixture(t)
	f.wire(&flakyQuestions{QuestionRepository: f.questionRepo, failures: 1})
	contest := f.seedContest(t, nil)
	questions := f.seedQuestions(t, contest.ID)
	f.start(t, contest.ID, 7)
	ctx := context.Background()

	_, err := f.sessions.SaveAnswers(ctx, contest.ID, 7, dto.SaveAnswersRequest{Answers: []dto.MCQAnswerInput{
		{QuestionID: questions[1].ID, SelectedOptions: []string{"a"}},
	}})
	require.NoError(t, err)
	session := f.session(t, contest.ID, 7)

	won, err := f.sessions.ForceTerminate(ctx, session.ID, models.TerminationMalpractice)
	require.True(t, won)
	require.Error(t, err)
	require.Equal(t, models.ResultStatusInProgress, f.result(t, contest.ID, 7).Status)

	won, err = f.sessions.ForceTerminate(ctx, session.ID, models.TerminationMalpractice)
	require.NoError(t, err)
	require.False(t, won)

	result := f.result(t, contest.ID, 7)
	require.Equal(t, models.ResultStatusSubmitted, result.Status)
	require.Equal(t, models.TerminationMalpractice, result.TerminationReason)
	require.Equal(t, 2.0, result.MCQScore)
}

func TestTimeoutSweeperReachesOverdueSessionsPastFirstBatch(t *testing.T) {
	f := newContestFixture(t)
	marathon := f.seedContest(t, func(c *models.Contest) { c.DurationMinutes = 240 })
	sprint := f.seedContest(t, func(c *models.Contest) { c.DurationMinutes = 10 })
	for user := uint(1); user <= 5; user++ {
		f.start(t, marathon.ID, user)
	}
	f.start(t, sprint.ID, 20)
	f.start(t, sprint.ID, 21)

	sweeper := NewTimeoutSweeper(f.sessionRepo, f.contests, f.sessions, time.Second, f.sessions.logger)
	sweeper.now = f.clock.Now
	sweeper.batchSize = 2

	f.clock.Advance(15 * time.Minute)
	ended, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, ended)

	require.Equal(t, models.SessionStatusTimedOut, f.session(t, sprint.ID, 20).Status)
	require.Equal(t, models.SessionStatusTimedOut, f.session(t, sprint.ID, 21).Status)
	for user := uint(1); user <= 5; user++ {
		require.Equal(t, models.SessionStatusInProgress, f.session(t, marathon.ID, user).Status)
	}
}
