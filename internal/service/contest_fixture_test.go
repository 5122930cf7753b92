package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/dto"
	"github.com/noah-isme/gema-contest-api/internal/models"
	"github.com/noah-isme/gema-contest-api/internal/repository"
	"github.com/noah-isme/gema-contest-api/pkg/judge"
)

var contestEpoch = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []dto.ContestEvent
}

func (r *recordingEmitter) Emit(_ context.Context, event dto.ContestEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Type)
	}
	return out
}

// countingResults counts Finalize calls on top of the real result service.
type countingResults struct {
	ResultService
	mu        sync.Mutex
	finalized int
}

func (c *countingResults) Finalize(ctx context.Context, contest models.Contest, session models.ContestSession) (models.ContestResult, error) {
	c.mu.Lock()
	c.finalized++
	c.mu.Unlock()
	return c.ResultService.Finalize(ctx, contest, session)
}

func (c *countingResults) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalized
}

type contestFixture struct {
	db             *gorm.DB
	clock          *fakeClock
	events         *recordingEmitter
	contests       repository.ContestRepository
	registrations  repository.RegistrationRepository
	sessionRepo    repository.SessionRepository
	violationRepo  repository.ViolationRepository
	resultRepo     repository.ResultRepository
	questionRepo   repository.QuestionRepository
	problemRepo    repository.ProblemRepository
	submissionRepo repository.ContestSubmissionRepository
	results        *countingResults
	sessions       *sessionService
	proctoring     *proctoringService
}

func newContestTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Contest{},
		&models.Registration{},
		&models.ContestSession{},
		&models.Violation{},
		&models.Problem{},
		&models.TestCase{},
		&models.Question{},
		&models.ContestSubmission{},
		&models.ContestResult{},
	))
	return db
}

func newContestFixture(t *testing.T) *contestFixture {
	t.Helper()

	db := newContestTestDB(t)
	clock := &fakeClock{now: contestEpoch}
	events := &recordingEmitter{}

	f := &contestFixture{
		db:             db,
		clock:          clock,
		events:         events,
		contests:       repository.NewContestRepository(db),
		registrations:  repository.NewRegistrationRepository(db),
		sessionRepo:    repository.NewSessionRepository(db),
		violationRepo:  repository.NewViolationRepository(db),
		resultRepo:     repository.NewResultRepository(db),
		questionRepo:   repository.NewQuestionRepository(db),
		problemRepo:    repository.NewProblemRepository(db),
		submissionRepo: repository.NewContestSubmissionRepository(db),
	}

	f.wire(f.questionRepo)
	return f
}

// wire builds the services on top of the fixture repositories, reading questions from questions.
func (f *contestFixture) wire(questions repository.QuestionRepository) {
	validate := validator.New()

	results := NewResultService(f.resultRepo, f.sessionRepo, questions, nil, time.Minute, f.events, zerolog.Nop()).(*resultService)
	results.now = f.clock.Now
	f.results = &countingResults{ResultService: results}

	sessions := NewSessionService(f.contests, f.registrations, f.sessionRepo, f.violationRepo, f.results, f.events, validate, zerolog.Nop(), SessionConfig{}).(*sessionService)
	sessions.now = f.clock.Now
	f.sessions = sessions

	f.proctoring = NewProctoringService(f.sessionRepo, f.violationRepo, sessions, f.events, validate, zerolog.Nop(), 3).(*proctoringService)
}

// seedContest creates a live sixty minute contest with both sections enabled.
func (f *contestFixture) seedContest(t *testing.T, mutate func(*models.Contest)) models.Contest {
	t.Helper()

	contest := models.Contest{
		Title:           "Spring Qualifier",
		StartTime:       contestEpoch.Add(-time.Hour),
		EndTime:         contestEpoch.Add(5 * time.Hour),
		DurationMinutes: 60,
		MCQEnabled:      true,
		CodingEnabled:   true,
	}
	if mutate != nil {
		mutate(&contest)
	}
	require.NoError(t, f.contests.Create(context.Background(), &contest))
	return contest
}

func (f *contestFixture) register(t *testing.T, contestID, userID uint) {
	t.Helper()
	registration := models.Registration{ContestID: contestID, UserID: userID, RegisteredAt: f.clock.Now()}
	require.NoError(t, f.registrations.Register(context.Background(), &registration, 0))
}

func (f *contestFixture) start(t *testing.T, contestID, userID uint) dto.SessionResponse {
	t.Helper()
	f.register(t, contestID, userID)
	session, err := f.sessions.Start(context.Background(), contestID, userID)
	require.NoError(t, err)
	return session
}

func (f *contestFixture) seedQuestions(t *testing.T, contestID uint) []models.Question {
	t.Helper()

	questions := []models.Question{
		{ContestID: contestID, Prompt: "Pick the primes", Marks: 4, NegativeMarks: 1, Options: []models.QuestionOption{{ID: "a", Text: "2", IsCorrect: true}, {ID: "b", Text: "4"}, {ID: "c", Text: "5", IsCorrect: true}}},
		{ContestID: contestID, Prompt: "Zero value of int", Marks: 2, NegativeMarks: 0.5, Options: []models.QuestionOption{{ID: "a", Text: "0", IsCorrect: true}, {ID: "b", Text: "nil"}}},
	}
	for i := range questions {
		require.NoError(t, f.db.Create(&questions[i]).Error)
	}
	return questions
}

// seedProblem creates an echo problem with two fifty point cases, the second hidden.
func (f *contestFixture) seedProblem(t *testing.T, contestID uint) models.Problem {
	t.Helper()

	problem := models.Problem{
		ContestID:        contestID,
		Title:            "Echo",
		TimeLimitSeconds: 1,
		MemoryLimitKB:    65536,
		Examples:         []models.ProblemExample{{Input: "hi", Output: "hi"}},
		TestCases: []models.TestCase{
			{Position: 1, Input: "alpha", ExpectedOutput: "alpha", Points: 50},
			{Position: 2, Input: "beta", ExpectedOutput: "beta", Points: 50, Hidden: true},
		},
	}
	require.NoError(t, f.db.Create(&problem).Error)
	return problem
}

func (f *contestFixture) submissionService(client judge.Client) *contestSubmissionService {
	svc := NewContestSubmissionService(f.contests, f.sessionRepo, f.problemRepo, f.submissionRepo, f.results, NewGrader(client, zerolog.Nop()), f.events, validator.New(), zerolog.Nop()).(*contestSubmissionService)
	svc.now = f.clock.Now
	return svc
}

func (f *contestFixture) session(t *testing.T, contestID, userID uint) models.ContestSession {
	t.Helper()
	session, err := f.sessionRepo.GetByContestAndUser(context.Background(), contestID, userID)
	require.NoError(t, err)
	return session
}

func (f *contestFixture) result(t *testing.T, contestID, userID uint) models.ContestResult {
	t.Helper()
	result, err := f.resultRepo.GetByContestAndUser(context.Background(), contestID, userID)
	require.NoError(t, err)
	return result
}

// echoJudge accepts whenever the program would print its stdin back.
var echoJudge = judge.ClientFunc(func(_ context.Context, req judge.Request) (judge.Result, error) {
	if req.SkipComparison || judge.OutputMatches(req.Stdin, req.ExpectedOutput) {
		return judge.Result{Status: judge.StatusAccepted, Stdout: req.Stdin, TimeSeconds: 0.01}, nil
	}
	return judge.Result{Status: judge.StatusWrongAnswer, Stdout: req.Stdin}, nil
})
