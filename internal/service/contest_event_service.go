package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-contest-api/internal/dto"
)

const contestEventBufferSize = 32

// EventEmitter publishes contest events. Implementations must never block the caller on delivery.
type EventEmitter interface {
	Emit(ctx context.Context, event dto.ContestEvent)
}

// ContestEventService fans contest events out to local monitors and to other API nodes.
type ContestEventService interface {
	EventEmitter
	Subscribe(contestID uint) (<-chan dto.ContestEvent, func())
	Start(ctx context.Context)
}

type contestEventService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *contestEventBroker
	nodeID       string
	now          func() time.Time
}

type contestEventEnvelope struct {
	Source string           `json:"source"`
	Event  dto.ContestEvent `json:"event"`
}

type contestEventBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.ContestEvent]struct{}
}

// NewContestEventService constructs the event bus. Redis and NATS are optional.
func NewContestEventService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) ContestEventService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":contest-events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".contest.events"
	}

	return &contestEventService{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "contest_event_service").Logger(),
		broker: &contestEventBroker{
			subscribers: make(map[uint]map[chan dto.ContestEvent]struct{}),
		},
		nodeID: uuid.NewString(),
		now:    time.Now,
	}
}

func (s *contestEventService) Start(ctx context.Context) {
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
		return
	}
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
}

func (s *contestEventService) Emit(ctx context.Context, event dto.ContestEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}

	s.broker.broadcast(event)
	if err := s.publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event", event.Type).Msg("failed to publish contest event")
	}
}

func (s *contestEventService) Subscribe(contestID uint) (<-chan dto.ContestEvent, func()) {
	channel := make(chan dto.ContestEvent, contestEventBufferSize)
	s.broker.subscribe(contestID, channel)

	var once sync.Once
	cleanup := func() {
		once.Do(func() { s.broker.unsubscribe(contestID, channel) })
	}
	return channel, cleanup
}

// publish prefers NATS and falls back to redis pub/sub when no NATS connection is configured.
func (s *contestEventService) publish(ctx context.Context, event dto.ContestEvent) error {
	payload, err := json.Marshal(contestEventEnvelope{Source: s.nodeID, Event: event})
	if err != nil {
		return err
	}

	if s.nats != nil && s.natsSubject != "" {
		return s.nats.Publish(s.natsSubject, payload)
	}
	if s.redis != nil && s.redisChannel != "" {
		return s.redis.Publish(ctx, s.redisChannel, payload).Err()
	}
	return nil
}

func (s *contestEventService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("contest event redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *contestEventService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats contest events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain contest event subscription")
		}
	}()
}

// handleEnvelope delivers events published by other nodes. Events from this node were already broadcast locally.
func (s *contestEventService) handleEnvelope(payload []byte) {
	var envelope contestEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid contest event payload")
		return
	}
	if envelope.Source == s.nodeID {
		return
	}
	s.broker.broadcast(envelope.Event)
}

func (b *contestEventBroker) subscribe(contestID uint, ch chan dto.ContestEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[contestID]; !exists {
		b.subscribers[contestID] = make(map[chan dto.ContestEvent]struct{})
	}
	b.subscribers[contestID][ch] = struct{}{}
}

func (b *contestEventBroker) unsubscribe(contestID uint, ch chan dto.ContestEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[contestID]; ok {
		if _, found := subscribers[ch]; !found {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, contestID)
		}
	}
}

// broadcast drops events for subscribers whose buffer is full.
func (b *contestEventBroker) broadcast(event dto.ContestEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.ContestID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func emit(ctx context.Context, emitter EventEmitter, event dto.ContestEvent) {
	if emitter == nil {
		return
	}
	emitter.Emit(ctx, event)
}
