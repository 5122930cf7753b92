package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-contest-api/internal/models"
)

func TestRegistrationRepositoryRegisterCreatesResult(t *testing.T) {
	db := setupContestTestDB(t, &models.Contest{}, &models.Registration{}, &models.ContestResult{})
	seedRegistrationContest(t, db, 1)
	registrations := NewRegistrationRepository(db)
	results := NewResultRepository(db)
	ctx := context.Background()

	require.NoError(t, registrations.Register(ctx, &models.Registration{ContestID: 1, UserID: 7}, 2))
	require.ErrorIs(t, registrations.Register(ctx, &models.Registration{ContestID: 1, UserID: 7}, 2), ErrDuplicateRegistration)
	require.NoError(t, registrations.Register(ctx, &models.Registration{ContestID: 1, UserID: 8}, 2))
	require.ErrorIs(t, registrations.Register(ctx, &models.Registration{ContestID: 1, UserID: 9}, 2), ErrContestCapacity)
	require.NoError(t, registrations.Register(ctx, &models.Registration{ContestID: 2, UserID: 9}, 0))

	result, err := results.GetByContestAndUser(ctx, 1, 8)
	require.NoError(t, err)
	require.Equal(t, models.ResultStatusRegistered, result.Status)
	require.Equal(t, int64(1), result.Version)

	count, err := registrations.Count(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func seedRegistrationContest(t *testing.T, db *gorm.DB, id uint) {
	t.Helper()
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.Contest{ID: id, Title: "Capacity", StartTime: start, EndTime: start.Add(time.Hour), DurationMinutes: 60}).Error)
}

func TestRegistrationRepositoryConcurrentRegisterHonoursCapacity(t *testing.T) {
	db := setupContestTestDB(t, &models.Contest{}, &models.Registration{}, &models.ContestResult{})
	seedRegistrationContest(t, db, 1)
	registrations := NewRegistrationRepository(db)
	ctx := context.Background()

	const capacity = 3
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for user := uint(1); user <= 10; user++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			err := registrations.Register(ctx, &models.Registration{ContestID: 1, UserID: userID}, capacity)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrContestCapacity):
				rejected++
			default:
				t.Errorf("unexpected register error: %v", err)
			}
		}(user)
	}
	wg.Wait()

	require.Equal(t, capacity, accepted)
	require.Equal(t, 7, rejected)
	count, err := registrations.Count(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(capacity), count)
}

func TestRegistrationRepositoryCapacityNeedsContest(t *testing.T) {
	db := setupContestTestDB(t, &models.Contest{}, &models.Registration{}, &models.ContestResult{})
	registrations := NewRegistrationRepository(db)

	err := registrations.Register(context.Background(), &models.Registration{ContestID: 42, UserID: 1}, 5)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestResultRepositoryRanksOnlyFinalResults(t *testing.T) {
	db := setupContestTestDB(t, &models.ContestResult{})
	repo := NewResultRepository(db)
	ctx := context.Background()

	rows := []models.ContestResult{
		{ContestID: 1, UserID: 1, Status: models.ResultStatusSubmitted, TotalScore: 10},
		{ContestID: 1, UserID: 2, Status: models.ResultStatusInProgress, TotalScore: 99},
		{ContestID: 1, UserID: 3, Status: models.ResultStatusTimedOut, TotalScore: 20},
		{ContestID: 2, UserID: 1, Status: models.ResultStatusSubmitted, TotalScore: 50},
	}
	for i := range rows {
		require.NoError(t, repo.Create(ctx, &rows[i]))
	}

	final, err := repo.ListFinal(ctx, 1)
	require.NoError(t, err)
	require.Len(t, final, 2)

	require.NoError(t, repo.UpdateRanks(ctx, map[uint]int{rows[0].ID: 2, rows[2].ID: 1}))
	ranked, err := repo.GetByContestAndUser(ctx, 1, 3)
	require.NoError(t, err)
	require.NotNil(t, ranked.Rank)
	require.Equal(t, 1, *ranked.Rank)
	require.Equal(t, int64(1), ranked.Version)

	stale := ranked
	ranked.TotalScore = 25
	ok, err := repo.CompareAndSwap(ctx, &ranked)
	require.NoError(t, err)
	require.True(t, ok)

	stale.TotalScore = 5
	ok, err = repo.CompareAndSwap(ctx, &stale)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := repo.GetByContestAndUser(ctx, 1, 3)
	require.NoError(t, err)
	require.Equal(t, 25.0, stored.TotalScore)
	require.Equal(t, 1, *stored.Rank)
}
