package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/models"
)

func TestReportViolationEscalatesToMalpractice(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	problem := f.seedProblem(t, contest.ID)
	f.start(t, contest.ID, 7)
	ctx := context.Background()

	_, err := f.submissionService(echoJudge).Submit(ctx, contest.ID, 7, dto.CodeSubmissionRequest{
		ProblemID: problem.ID,
		Language:  "python",
		Source:    "print(input())",
	})
	require.NoError(t, err)

	first, err := f.proctoring.ReportViolation(ctx, contest.ID, 7, dto.ViolationRequest{Type: string(models.ViolationTabSwitch), Details: "<b>tab</b> switched"})
	require.NoError(t, err)
	require.Equal(t, 1, first.WarningNumber)
	require.Equal(t, 3, first.Threshold)
	require.False(t, first.AutoSubmit)
	require.Equal(t, string(models.SessionStatusInProgress), first.SessionStatus)

	second, err := f.proctoring.ReportViolation(ctx, contest.ID, 7, dto.ViolationRequest{Type: string(models.ViolationFullscreenExit)})
	require.NoError(t, err)
	require.Equal(t, 2, second.WarningNumber)
	require.False(t, second.AutoSubmit)

	third, err := f.proctoring.ReportViolation(ctx, contest.ID, 7, dto.ViolationRequest{Type: string(models.ViolationCopyAttempt)})
	require.NoError(t, err)
	require.Equal(t, 3, third.WarningNumber)
	require.True(t, third.AutoSubmit)
	require.Equal(t, string(models.SessionStatusSubmitted), third.SessionStatus)

	_, err = f.proctoring.ReportViolation(ctx, contest.ID, 7, dto.ViolationRequest{Type: string(models.ViolationPasteAttempt)})
	require.ErrorIs(t, err, ErrSessionTerminal)

	session := f.session(t, contest.ID, 7)
	require.Equal(t, models.SessionStatusSubmitted, session.Status)
	require.Equal(t, models.TerminationMalpractice, session.TerminationReason)
	require.Equal(t, 3, session.WarningCount)

	result := f.result(t, contest.ID, 7)
	require.Equal(t, models.ResultStatusSubmitted, result.Status)
	require.Equal(t, models.TerminationMalpractice, result.TerminationReason)
	require.Equal(t, 100.0, result.CodingScore)
	require.Equal(t, 1, f.results.calls())
	require.Contains(t, f.events.types(), dto.EventSessionTerminated)

	userID := uint(7)
	violations, err := f.proctoring.ListViolations(ctx, contest.ID, &userID)
	require.NoError(t, err)
	require.Len(t, violations, 3)
	for i, violation := range violations {
		require.Equal(t, i+1, violation.WarningNumber)
	}
	require.Equal(t, "tab switched", violations[0].Details)
	require.Equal(t, string(models.ViolationCopyAttempt), violations[2].Type)
}

func TestReportViolationRequiresSession(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)

	_, err := f.proctoring.ReportViolation(context.Background(), contest.ID, 7, dto.ViolationRequest{Type: string(models.ViolationWindowBlur)})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReportViolationRejectsUnknownType(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	f.start(t, contest.ID, 7)

	_, err := f.proctoring.ReportViolation(context.Background(), contest.ID, 7, dto.ViolationRequest{Type: "DEVTOOLS_OPEN"})
	require.Error(t, err)
	require.Zero(t, f.session(t, contest.ID, 7).WarningCount)
}

func TestReportViolationHonoursConfiguredThreshold(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	f.start(t, contest.ID, 7)
	f.start(t, contest.ID, 8)

	strict := NewProctoringService(f.sessionRepo, f.violationRepo, f.sessions, f.events, validator.New(), zerolog.Nop(), 1)
	response, err := strict.ReportViolation(context.Background(), contest.ID, 7, dto.ViolationRequest{Type: string(models.ViolationScreenshotAttempt)})
	require.NoError(t, err)
	require.True(t, response.AutoSubmit)
	require.Equal(t, 1, response.WarningNumber)

	require.Equal(t, models.SessionStatusSubmitted, f.session(t, contest.ID, 7).Status)
	require.Equal(t, models.SessionStatusInProgress, f.session(t, contest.ID, 8).Status)

	all, err := f.proctoring.ListViolations(context.Background(), contest.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
