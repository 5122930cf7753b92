package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-contest-api/internal/dto"
)

func TestContestEventServiceDeliversPerContest(t *testing.T) {
	svc := NewContestEventService(nil, "", nil, zerolog.Nop())

	events, cancel := svc.Subscribe(1)
	other, cancelOther := svc.Subscribe(2)
	defer cancelOther()

	svc.Emit(context.Background(), dto.ContestEvent{Type: dto.EventViolationReported, ContestID: 1, UserID: 7})

	select {
	case event := <-events:
		require.Equal(t, dto.EventViolationReported, event.Type)
		require.False(t, event.OccurredAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected event for contest 1")
	}
	require.Empty(t, other)

	cancel()
	cancel()
	_, open := <-events
	require.False(t, open)

	svc.Emit(context.Background(), dto.ContestEvent{Type: dto.EventSessionStarted, ContestID: 1})
}

func TestContestEventServiceDropsWhenSubscriberIsSlow(t *testing.T) {
	svc := NewContestEventService(nil, "", nil, zerolog.Nop())
	events, cancel := svc.Subscribe(3)
	defer cancel()

	for i := 0; i < contestEventBufferSize+10; i++ {
		svc.Emit(context.Background(), dto.ContestEvent{Type: dto.EventSubmissionGraded, ContestID: 3})
	}
	require.Len(t, events, contestEventBufferSize)
}

func TestContestEventServiceRelaysAcrossNodes(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := NewContestEventService(redisClient, "contest", nil, zerolog.Nop())
	receiver := NewContestEventService(redisClient, "contest", nil, zerolog.Nop())
	receiver.Start(ctx)

	require.Eventually(t, func() bool {
		return server.PubSubNumSub("contest:contest-events")["contest:contest-events"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	local, cancelLocal := publisher.Subscribe(9)
	defer cancelLocal()
	remote, cancelRemote := receiver.Subscribe(9)
	defer cancelRemote()

	publisher.Emit(ctx, dto.ContestEvent{Type: dto.EventLeaderboardUpdated, ContestID: 9})

	select {
	case event := <-remote:
		require.Equal(t, dto.EventLeaderboardUpdated, event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("expected relayed event")
	}

	require.Len(t, local, 1)
}
