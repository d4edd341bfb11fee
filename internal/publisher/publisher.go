package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/computechain/explorer/pkg/db/models"
	"github.com/redis/go-redis/v9"
)

// Event kinds carried on the stream.
const (
	KindBlock = "block_indexed"
	KindReorg = "reorg_resolved"
)

// Event is the wire shape published to the Redis stream for downstream
// consumers (UI push, webhooks).
type Event struct {
	Kind     string             `json:"kind"`
	Height   uint64             `json:"height"`
	Hash     string             `json:"hash,omitempty"`
	Reorg    *models.ReorgEvent `json:"reorg,omitempty"`
	EmitTime time.Time          `json:"emit_time"`
}

// Publisher publishes indexing events to a Redis Stream.
type Publisher struct {
	pub         message.Publisher
	redisClient redis.UniversalClient
	topic       string
}

// New creates a new Publisher.
func New(redisClient redis.UniversalClient, topic string) (*Publisher, error) {
	logger := watermill.NewSlogLogger(nil)

	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		pub:         pub,
		redisClient: redisClient,
		topic:       topic,
	}, nil
}

// PublishBlock announces a newly committed block.
func (p *Publisher) PublishBlock(ctx context.Context, height uint64, hash string) error {
	return p.publish(Event{
		Kind:     KindBlock,
		Height:   height,
		Hash:     hash,
		EmitTime: time.Now().UTC(),
	})
}

// PublishReorg announces a resolved reorganization.
func (p *Publisher) PublishReorg(ctx context.Context, ev models.ReorgEvent) error {
	return p.publish(Event{
		Kind:     KindReorg,
		Height:   ev.Height,
		Reorg:    &ev,
		EmitTime: time.Now().UTC(),
	})
}

func (p *Publisher) publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msgUUID := watermill.NewUUID()
	msg := message.NewMessage(msgUUID, payload)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		slog.Error("redis publish failed", "kind", ev.Kind, "height", ev.Height, "msg_uuid", msgUUID, "err", err)
		return err
	}

	slog.Debug("redis publish ok", "kind", ev.Kind, "height", ev.Height, "msg_uuid", msgUUID)
	return nil
}

// Close closes the publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}

// QueueLength returns the number of messages in the Redis stream.
func (p *Publisher) QueueLength(ctx context.Context) (int64, error) {
	return p.redisClient.XLen(ctx, p.topic).Result()
}
