package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-contest-api/internal/models"
	"github.com/noah-isme/gema-contest-api/internal/observability"
	"github.com/noah-isme/gema-contest-api/pkg/judge"
)

// Evaluation is the aggregate outcome of running a source against a problem's test cases.
type Evaluation struct {
	Verdict       models.Verdict
	Score         float64
	MaxScore      float64
	Passed        int
	Total         int
	Results       []models.TestCaseResult
	CompileOutput string
	Errored       int
}

// PartialFailure reports whether any case could not be executed by the sandbox.
func (e Evaluation) PartialFailure() bool {
	return e.Errored > 0
}

// Err returns ErrGradingPartialFailure when some cases were not executed.
func (e Evaluation) Err() error {
	if e.Errored == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d test cases", ErrGradingPartialFailure, e.Errored, e.Total)
}

// RunOutcome is the response of a single ungraded run.
type RunOutcome struct {
	Input          string
	ExpectedOutput string
	Stdout         string
	Stderr         string
	CompileOutput  string
	Verdict        models.Verdict
	Passed         *bool
	TimeSeconds    float64
	MemoryKB       int64
}

// Grader runs sources against problems through a judge backend.
type Grader struct {
	judge  judge.Client
	logger zerolog.Logger
}

// NewGrader constructs a grader bound to the given judge backend.
func NewGrader(client judge.Client, logger zerolog.Logger) *Grader {
	return &Grader{
		judge:  client,
		logger: logger.With().Str("component", "grader").Logger(),
	}
}

// Evaluate grades the source against every test case in order. A compilation error or a
// hidden case failure stops grading early.
func (g *Grader) Evaluate(ctx context.Context, problem models.Problem, source string, language judge.Language) Evaluation {
	tracer := otel.Tracer("github.com/noah-isme/gema-contest-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grader.Evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("problem.id", int(problem.ID)),
		attribute.String("language", language.Name),
	)

	started := time.Now()
	defer func() {
		observability.GradingDuration().WithLabelValues("submit").Observe(time.Since(started).Seconds())
	}()

	eval := Evaluation{
		MaxScore: problem.MaxScore(),
		Total:    len(problem.TestCases),
		Results:  make([]models.TestCaseResult, 0, len(problem.TestCases)),
	}
	if eval.Total == 0 {
		eval.Verdict = models.VerdictWrongAnswer
		return eval
	}

	var firstFailure models.Verdict
	for _, tc := range problem.TestCases {
		result, err := g.judge.Submit(ctx, g.request(problem, source, language, tc.Input, tc.ExpectedOutput, false))
		caseResult := models.TestCaseResult{
			TestCaseID: tc.ID,
			Position:   tc.Position,
			Hidden:     tc.Hidden,
		}

		switch {
		case err != nil || result.Status.SandboxFailure():
			eval.Errored++
			caseResult.Verdict = models.VerdictWrongAnswer
			caseResult.ErrorMessage = executionMessage(err, result)
			g.logger.Warn().
				Err(err).
				Uint("problem_id", problem.ID).
				Uint("test_case_id", tc.ID).
				Msg("test case could not be executed")
		default:
			caseResult.Verdict = verdictFromJudge(result, problem.MemoryLimitKB)
			caseResult.Stdout = result.Stdout
			caseResult.Stderr = result.Stderr
			caseResult.TimeSeconds = result.TimeSeconds
			caseResult.MemoryKB = result.MemoryKB
		}

		if caseResult.Verdict == models.VerdictCompilationError {
			eval.Verdict = models.VerdictCompilationError
			eval.CompileOutput = result.CompileOutput
			eval.Score = 0
			eval.Passed = 0
			eval.Results = append(eval.Results, caseResult)
			return eval
		}

		if caseResult.Verdict == models.VerdictAccepted {
			caseResult.Passed = true
			caseResult.Points = tc.Points
			eval.Passed++
			eval.Score += tc.Points
			eval.Results = append(eval.Results, caseResult)
			continue
		}

		eval.Results = append(eval.Results, caseResult)
		if firstFailure == "" {
			firstFailure = caseResult.Verdict
		}
		if tc.Hidden {
			firstFailure = caseResult.Verdict
			break
		}
	}

	if firstFailure == "" && eval.Passed == eval.Total {
		eval.Verdict = models.VerdictAccepted
	} else {
		eval.Verdict = firstFailure
	}

	if eval.PartialFailure() {
		span.RecordError(eval.Err())
		span.SetStatus(codes.Error, "partial grading failure")
	}
	span.SetAttributes(attribute.String("verdict", string(eval.Verdict)))

	return eval
}

// CheckAll runs every test case without stopping early. Hidden cases keep their pass flag and timings only.
func (g *Grader) CheckAll(ctx context.Context, problem models.Problem, source string, language judge.Language) Evaluation {
	tracer := otel.Tracer("github.com/noah-isme/gema-contest-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grader.CheckAll")
	defer span.End()

	started := time.Now()
	defer func() {
		observability.GradingDuration().WithLabelValues("check").Observe(time.Since(started).Seconds())
	}()

	eval := Evaluation{
		MaxScore: problem.MaxScore(),
		Total:    len(problem.TestCases),
		Results:  make([]models.TestCaseResult, 0, len(problem.TestCases)),
	}

	var firstFailure models.Verdict
	for _, tc := range problem.TestCases {
		result, err := g.judge.Submit(ctx, g.request(problem, source, language, tc.Input, tc.ExpectedOutput, false))
		caseResult := models.TestCaseResult{
			TestCaseID: tc.ID,
			Position:   tc.Position,
			Hidden:     tc.Hidden,
		}

		if err != nil || result.Status.SandboxFailure() {
			eval.Errored++
			caseResult.Verdict = models.VerdictWrongAnswer
			caseResult.ErrorMessage = executionMessage(err, result)
		} else {
			caseResult.Verdict = verdictFromJudge(result, problem.MemoryLimitKB)
			caseResult.TimeSeconds = result.TimeSeconds
			caseResult.MemoryKB = result.MemoryKB
			if !tc.Hidden {
				caseResult.Stdout = result.Stdout
				caseResult.Stderr = result.Stderr
			}
			if caseResult.Verdict == models.VerdictCompilationError && eval.CompileOutput == "" {
				eval.CompileOutput = result.CompileOutput
			}
		}

		if caseResult.Verdict == models.VerdictAccepted {
			caseResult.Passed = true
			caseResult.Points = tc.Points
			eval.Passed++
			eval.Score += tc.Points
		} else if firstFailure == "" {
			firstFailure = caseResult.Verdict
		}
		if tc.Hidden {
			caseResult.Verdict = ""
			caseResult.ErrorMessage = ""
		}
		eval.Results = append(eval.Results, caseResult)
	}

	switch {
	case eval.Total == 0:
		eval.Verdict = models.VerdictWrongAnswer
	case firstFailure == "":
		eval.Verdict = models.VerdictAccepted
	default:
		eval.Verdict = firstFailure
	}

	return eval
}

// RunSingle executes the source once against custom input, falling back to the first sample.
func (g *Grader) RunSingle(ctx context.Context, problem models.Problem, source string, language judge.Language, customInput string) (RunOutcome, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-contest-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grader.RunSingle")
	defer span.End()

	started := time.Now()
	defer func() {
		observability.GradingDuration().WithLabelValues("run").Observe(time.Since(started).Seconds())
	}()

	input := customInput
	expected := ""
	hasExpected := false
	if input == "" {
		input, expected, hasExpected = defaultSample(problem)
	}

	result, err := g.judge.Submit(ctx, g.request(problem, source, language, input, expected, !hasExpected))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		return RunOutcome{}, fmt.Errorf("run problem %d: %w", problem.ID, err)
	}
	if result.Status.SandboxFailure() {
		err := fmt.Errorf("run problem %d: %w: %s", problem.ID, judge.ErrExecution, result.Description)
		span.RecordError(err)
		span.SetStatus(codes.Error, "sandbox failure")
		return RunOutcome{}, err
	}

	outcome := RunOutcome{
		Input:         input,
		Stdout:        result.Stdout,
		Stderr:        result.Stderr,
		CompileOutput: result.CompileOutput,
		Verdict:       verdictFromJudge(result, problem.MemoryLimitKB),
		TimeSeconds:   result.TimeSeconds,
		MemoryKB:      result.MemoryKB,
	}
	if hasExpected {
		passed := outcome.Verdict == models.VerdictAccepted
		outcome.ExpectedOutput = expected
		outcome.Passed = &passed
	}

	return outcome, nil
}

func (g *Grader) request(problem models.Problem, source string, language judge.Language, stdin, expected string, skip bool) judge.Request {
	return judge.Request{
		Source:         source,
		Language:       language,
		Stdin:          stdin,
		ExpectedOutput: expected,
		SkipComparison: skip,
		CPUTimeLimit:   problem.TimeLimitSeconds,
		MemoryLimitKB:  problem.MemoryLimitKB,
	}
}

func defaultSample(problem models.Problem) (string, string, bool) {
	if len(problem.Examples) > 0 {
		return problem.Examples[0].Input, problem.Examples[0].Output, true
	}
	for _, tc := range problem.TestCases {
		if !tc.Hidden {
			return tc.Input, tc.ExpectedOutput, true
		}
	}
	return "", "", false
}

// verdictFromJudge maps a terminal judge status to a verdict. Runtime errors at or above the
// memory limit are reported as memory limit exceeded.
func verdictFromJudge(result judge.Result, memoryLimitKB int) models.Verdict {
	switch {
	case result.Status == judge.StatusAccepted:
		return models.VerdictAccepted
	case result.Status == judge.StatusWrongAnswer:
		return models.VerdictWrongAnswer
	case result.Status == judge.StatusTimeLimitExceeded:
		return models.VerdictTimeLimitExceeded
	case result.Status == judge.StatusCompilationError:
		return models.VerdictCompilationError
	case result.Status.RuntimeError():
		if memoryLimitKB > 0 && result.MemoryKB >= int64(memoryLimitKB) {
			return models.VerdictMemoryLimitExceeded
		}
		return models.VerdictRuntimeError
	default:
		return models.VerdictWrongAnswer
	}
}

func executionMessage(err error, result judge.Result) string {
	if err != nil {
		if errors.Is(err, judge.ErrExecution) {
			return err.Error()
		}
		return fmt.Sprintf("%s: %v", judge.ErrExecution, err)
	}
	if result.Description != "" {
		return result.Description
	}
	return judge.ErrExecution.Error()
}
