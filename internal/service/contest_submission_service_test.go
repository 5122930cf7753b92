package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/models"
	"github.com/noah-isme/gema-contest-api/pkg/judge"
)

// hiddenFailureJudge echoes stdin except on the hidden "beta" case.
var hiddenFailureJudge = judge.ClientFunc(func(ctx context.Context, req judge.Request) (judge.Result, error) {
	if req.Stdin == "beta" {
		return judge.Result{Status: judge.StatusWrongAnswer, Stdout: "gamma"}, nil
	}
	return echoJudge(ctx, req)
})

func TestSubmitKeepsBestScorePerProblem(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	problem := f.seedProblem(t, contest.ID)
	f.start(t, contest.ID, 7)
	ctx := context.Background()
	req := dto.CodeSubmissionRequest{ProblemID: problem.ID, Language: "Python", Source: "print(input())"}

	partial, err := f.submissionService(hiddenFailureJudge).Submit(ctx, contest.ID, 7, req)
	require.NoError(t, err)
	require.Equal(t, string(models.VerdictWrongAnswer), partial.Verdict)
	require.Equal(t, 50.0, partial.Score)
	require.Equal(t, 1, partial.TestcasesPassed)
	require.Equal(t, 2, partial.TestcasesTotal)
	require.Empty(t, partial.Results[1].Stdout)
	require.NotNil(t, partial.GradedAt)

	full, err := f.submissionService(echoJudge).Submit(ctx, contest.ID, 7, req)
	require.NoError(t, err)
	require.Equal(t, string(models.VerdictAccepted), full.Verdict)

	result := f.result(t, contest.ID, 7)
	require.Equal(t, 100.0, result.CodingScore)
	require.Len(t, result.Problems, 1)
	require.Equal(t, full.ID, result.Problems[0].SubmissionID)
	require.Equal(t, 2, result.Problems[0].Attempts)
	require.True(t, result.Problems[0].Solved)

	stored, err := f.problemRepo.GetByID(ctx, problem.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stored.SubmissionCount)
	require.Equal(t, int64(1), stored.AcceptedCount)

	svc := f.submissionService(echoJudge)
	listed, err := svc.List(ctx, contest.ID, 7, &problem.ID, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Empty(t, listed[0].Source)

	fetched, err := svc.Get(ctx, contest.ID, 7, partial.ID)
	require.NoError(t, err)
	require.Equal(t, "print(input())", fetched.Source)

	_, err = svc.Get(ctx, contest.ID, 8, partial.ID)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	require.Equal(t, []string{dto.EventSessionStarted, dto.EventSubmissionGraded, dto.EventSubmissionGraded}, f.events.types())
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	problem := f.seedProblem(t, contest.ID)
	other := f.seedContest(t, func(c *models.Contest) { c.Title = "Other" })
	foreign := f.seedProblem(t, other.ID)
	f.start(t, contest.ID, 7)
	svc := f.submissionService(echoJudge)
	ctx := context.Background()

	_, err := svc.Submit(ctx, contest.ID, 7, dto.CodeSubmissionRequest{ProblemID: problem.ID, Language: "cobol", Source: "DISPLAY 'HI'"})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)

	_, err = svc.Submit(ctx, contest.ID, 7, dto.CodeSubmissionRequest{ProblemID: foreign.ID, Language: "go", Source: "package main"})
	require.ErrorIs(t, err, ErrProblemNotFound)

	_, err = svc.Submit(ctx, contest.ID, 8, dto.CodeSubmissionRequest{ProblemID: problem.ID, Language: "go", Source: "package main"})
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Submit(ctx, contest.ID, 7, dto.CodeSubmissionRequest{ProblemID: problem.ID, Language: "go"})
	require.Error(t, err)

	mcqOnly := f.seedContest(t, func(c *models.Contest) { c.CodingEnabled = false })
	_, err = svc.Submit(ctx, mcqOnly.ID, 7, dto.CodeSubmissionRequest{ProblemID: problem.ID, Language: "go", Source: "package main"})
	require.ErrorIs(t, err, ErrSectionDisabled)

	listed, err := svc.List(ctx, contest.ID, 7, nil, 0)
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestRunAndCheckStayAvailableAfterSubmit(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	problem := f.seedProblem(t, contest.ID)
	f.start(t, contest.ID, 7)
	svc := f.submissionService(hiddenFailureJudge)
	ctx := context.Background()

	_, err := f.sessions.FinalSubmit(ctx, contest.ID, 7, dto.FinalSubmitRequest{})
	require.NoError(t, err)

	req := dto.CodeSubmissionRequest{ProblemID: problem.ID, Language: "python", Source: "print(input())"}
	_, err = svc.Submit(ctx, contest.ID, 7, req)
	require.ErrorIs(t, err, ErrSessionTerminal)

	run, err := svc.Run(ctx, contest.ID, 7, req)
	require.NoError(t, err)
	require.Equal(t, "hi", run.Input)
	require.NotNil(t, run.Passed)
	require.True(t, *run.Passed)

	checked, err := svc.CheckAll(ctx, contest.ID, 7, req)
	require.NoError(t, err)
	require.Equal(t, 1, checked.Passed)
	require.Equal(t, 2, checked.Total)
	require.Equal(t, 100.0, checked.MaxScore)
	require.Len(t, checked.Results, 2)
	require.True(t, checked.Results[1].Hidden)
	require.Empty(t, checked.Results[1].Stdout)

	listed, err := svc.List(ctx, contest.ID, 7, nil, 0)
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestSubmissionGradedAcrossTerminationIsNotMerged(t *testing.T) {
	f := newContestFixture(t)
	contest := f.seedContest(t, nil)
	problem := f.seedProblem(t, contest.ID)
	f.start(t, contest.ID, 7)
	session := f.session(t, contest.ID, 7)

	var once sync.Once
	client := judge.ClientFunc(func(ctx context.Context, req judge.Request) (judge.Result, error) {
		once.Do(func() {
			terminated, err := f.sessions.ForceTerminate(ctx, session.ID, models.TerminationTimeout)
			require.NoError(t, err)
			require.True(t, terminated)
		})
		return echoJudge(ctx, req)
	})

	submission, err := f.submissionService(client).Submit(context.Background(), contest.ID, 7, dto.CodeSubmissionRequest{
		ProblemID: problem.ID,
		Language:  "python",
		Source:    "print(input())",
	})
	require.NoError(t, err)
	require.Equal(t, string(models.VerdictAccepted), submission.Verdict)

	result := f.result(t, contest.ID, 7)
	require.Equal(t, models.ResultStatusTimedOut, result.Status)
	require.Zero(t, result.CodingScore)
	require.Empty(t, result.Problems)
}
