package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hay-kot/bell/internal/core/logging"
)

// DefaultRedisChannel is the pub/sub channel shared by relay instances.
const DefaultRedisChannel = "bell:relay:notifications"

// Broker routes a frame to the connections of a user.
type Broker interface {
	Publish(ctx context.Context, userID string, frame []byte) (int, error)
}

// LocalBroker delivers straight into the in-process hub.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(_ context.Context, userID string, frame []byte) (int, error) {
	return b.hub.Publish(userID, frame), nil
}

type redisMessage struct {
	UserID string          `json:"userId"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisBroker publishes frames to a redis channel that every relay instance
// subscribes to, so a user connected to any instance receives them.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     zerolog.Logger
}

// NewRedisBroker creates a broker on channel, or DefaultRedisChannel when empty.
func NewRedisBroker(client *redis.Client, channel string, hub *Hub) *RedisBroker {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		hub:     hub,
		log:     logging.Component("relay.redis"),
	}
}

// Publish returns the number of relay instances that received the frame.
func (b *RedisBroker) Publish(ctx context.Context, userID string, frame []byte) (int, error) {
	body, err := json.Marshal(redisMessage{UserID: userID, Frame: frame})
	if err != nil {
		return 0, fmt.Errorf("encode redis message: %w", err)
	}

	n, err := b.client.Publish(ctx, b.channel, body).Result()
	if err != nil {
		return 0, fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return int(n), nil
}

// Run forwards frames from the shared channel into the local hub until ctx
// is cancelled.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	b.log.Info().Str("channel", b.channel).Msg("redis fan-out subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m redisMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.log.Warn().Err(err).Msg("dropping malformed redis message")
				continue
			}
			if m.UserID == "" {
				continue
			}
			b.hub.Publish(m.UserID, m.Frame)
		}
	}
}
