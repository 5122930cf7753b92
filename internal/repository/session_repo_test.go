package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

func setupContestTestDB(t *testing.T, modelsToMigrate ...interface{}) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(modelsToMigrate...))
	return db
}

func newInProgressSession(contestID, userID uint) models.ContestSession {
	return models.ContestSession{
		ContestID:     contestID,
		UserID:        userID,
		StartedAt:     time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
		Status:        models.SessionStatusInProgress,
		QuestionTimes: map[string]int64{},
		ProblemTimes:  map[string]int64{},
		MCQAnswers:    []models.MCQAnswer{},
	}
}

func TestSessionRepositoryCreateIfAbsent(t *testing.T) {
	db := setupContestTestDB(t, &models.ContestSession{})
	repo := NewSessionRepository(db)
	ctx := context.Background()

	first := newInProgressSession(1, 7)
	created, err := repo.CreateIfAbsent(ctx, &first)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, int64(1), first.Version)

	duplicate := newInProgressSession(1, 7)
	created, err = repo.CreateIfAbsent(ctx, &duplicate)
	require.NoError(t, err)
	require.False(t, created)

	stored, err := repo.GetByContestAndUser(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, first.ID, stored.ID)
}

func TestSessionRepositoryCompareAndSwapRejectsStaleWriters(t *testing.T) {
	db := setupContestTestDB(t, &models.ContestSession{})
	repo := NewSessionRepository(db)
	ctx := context.Background()

	session := newInProgressSession(1, 7)
	_, err := repo.CreateIfAbsent(ctx, &session)
	require.NoError(t, err)

	stale := session

	session.QuestionTimes = map[string]int64{"3": 40}
	session.WarningCount = 9
	ok, err := repo.CompareAndSwap(ctx, &session, models.SessionStatusInProgress)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), session.Version)

	stale.MCQSectionSeconds = 100
	ok, err = repo.CompareAndSwap(ctx, &stale, models.SessionStatusInProgress)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, int64(40), stored.QuestionTimes["3"])
	require.Zero(t, stored.MCQSectionSeconds)
	require.Zero(t, stored.WarningCount)

	now := time.Now().UTC()
	stored.Status = models.SessionStatusSubmitted
	stored.TerminationReason = models.TerminationCompleted
	stored.SubmittedAt = &now
	ok, err = repo.CompareAndSwap(ctx, &stored, models.SessionStatusInProgress)
	require.NoError(t, err)
	require.True(t, ok)

	stored.Status = models.SessionStatusTimedOut
	ok, err = repo.CompareAndSwap(ctx, &stored, models.SessionStatusInProgress)
	require.NoError(t, err)
	require.False(t, ok)

	inProgress, err := repo.ListInProgress(ctx, 0, 0)
	require.NoError(t, err)
	require.Empty(t, inProgress)
}

func TestSessionRepositoryListInProgressPagesByID(t *testing.T) {
	db := setupContestTestDB(t, &models.ContestSession{})
	repo := NewSessionRepository(db)
	ctx := context.Background()

	for user := uint(1); user <= 5; user++ {
		session := newInProgressSession(1, user)
		_, err := repo.CreateIfAbsent(ctx, &session)
		require.NoError(t, err)
	}

	var seen []uint
	afterID := uint(0)
	for {
		page, err := repo.ListInProgress(ctx, afterID, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		require.LessOrEqual(t, len(page), 2)
		for _, session := range page {
			seen = append(seen, session.UserID)
		}
		afterID = page[len(page)-1].ID
	}
	require.Equal(t, []uint{1, 2, 3, 4, 5}, seen)
}

func TestSessionRepositoryIncrementWarningsIsAtomic(t *testing.T) {
	db := setupContestTestDB(t, &models.ContestSession{})
	repo := NewSessionRepository(db)
	ctx := context.Background()

	session := newInProgressSession(1, 7)
	_, err := repo.CreateIfAbsent(ctx, &session)
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts []int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			count, updated, err := repo.IncrementWarnings(ctx, session.ID)
			require.NoError(t, err)
			require.True(t, updated)
			mu.Lock()
			counts = append(counts, count)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(counts)
	require.Equal(t, []int{1, 2, 3, 4, 5}, counts)

	stored, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 5, stored.WarningCount)
	require.Equal(t, int64(6), stored.Version)

	stored.Status = models.SessionStatusSubmitted
	ok, err := repo.CompareAndSwap(ctx, &stored, models.SessionStatusInProgress)
	require.NoError(t, err)
	require.True(t, ok)

	count, updated, err := repo.IncrementWarnings(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, updated)
	require.Zero(t, count)
}
