// Package bridge connects relay processes through Redis pub/sub so clients attached to
// different relays still share one room.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aidenletourneau/forcemotion/internal/logging"
	"github.com/aidenletourneau/forcemotion/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel used when none is configured
const DefaultChannel = "forcemotion:state"

// Deliverer receives updates published by other relay processes
type Deliverer interface {
	DeliverRemote(msg models.Message)
}

// envelope tags a relayed message with the publishing process
type envelope struct {
	Instance string         `json:"instance"`
	Message  models.Message `json:"message"`
}

// Bridge publishes accepted updates and delivers those of other processes
type Bridge struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	logStore   *logging.LogStore
}

// Connect establishes a connection to Redis
func Connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Verify connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// New creates a bridge on the given channel
func New(rdb *redis.Client, channel string, logStore *logging.LogStore) *Bridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bridge{
		rdb:        rdb,
		channel:    channel,
		instanceID: uuid.NewString(),
		logStore:   logStore,
	}
}

// InstanceID identifies this relay process on the channel
func (b *Bridge) InstanceID() string { return b.instanceID }

// Publish sends msg to every other relay process
func (b *Bridge) Publish(ctx context.Context, msg models.Message) error {
	data, err := b.encode(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

// Start subscribes to the channel and hands foreign messages to d until ctx is cancelled
func (b *Bridge) Start(ctx context.Context, d Deliverer) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		b.logStore.LogAndStore(logging.LevelInfo, "Redis bridge subscribed to %s as %s", b.channel, b.instanceID)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				msg, ok, err := b.decode(raw.Payload)
				if err != nil {
					b.logStore.LogAndStore(logging.LevelWarning, "Invalid bridge payload: %v", err)
					continue
				}
				if !ok {
					continue
				}
				d.DeliverRemote(msg)
			}
		}
	}()
}

// Close closes the underlying Redis client
func (b *Bridge) Close() error {
	return b.rdb.Close()
}

func (b *Bridge) encode(msg models.Message) ([]byte, error) {
	data, err := json.Marshal(envelope{Instance: b.instanceID, Message: msg})
	if err != nil {
		return nil, fmt.Errorf("failed to encode bridge message: %w", err)
	}
	return data, nil
}

// decode returns ok=false for messages this process published itself
func (b *Bridge) decode(payload string) (models.Message, bool, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return models.Message{}, false, err
	}
	if env.Instance == b.instanceID {
		return models.Message{}, false, nil
	}
	if env.Message.Type == "" {
		return models.Message{}, false, fmt.Errorf("missing message type")
	}
	return env.Message, true, nil
}
