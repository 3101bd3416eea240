package changefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisPublisher appends changes to a Redis stream so other instances can observe them.
type RedisPublisher struct {
	client *redis.Client
	stream string
	origin string
	maxLen int64
}

// NewRedisPublisher creates a publisher tagging every change with origin.
func NewRedisPublisher(client *redis.Client, stream, origin string) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, origin: origin, maxLen: 10000}
}

func (p *RedisPublisher) Publish(ctx context.Context, changes ...Change) error {
	for _, c := range changes {
		c.Origin = p.origin
		data, err := encode(c)
		if err != nil {
			return fmt.Errorf("encode change: %w", err)
		}
		if err := p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Values: map[string]interface{}{
				"data":      string(data),
				"table":     c.Table,
				"timestamp": c.At.Unix(),
			},
		}).Err(); err != nil {
			return fmt.Errorf("xadd %s: %w", p.stream, err)
		}
	}
	return nil
}

// RedisConsumer tails a Redis stream and re-publishes changes from other origins into
// a local publisher, normally the Broker.
type RedisConsumer struct {
	client *redis.Client
	stream string
	origin string
	sink   Publisher
	logger *zap.Logger
	block  time.Duration
	lastID string
}

// NewRedisConsumer creates a consumer that starts at new entries only.
func NewRedisConsumer(client *redis.Client, stream, origin string, sink Publisher, logger *zap.Logger) *RedisConsumer {
	return &RedisConsumer{
		client: client,
		stream: stream,
		origin: origin,
		sink:   sink,
		logger: logger,
		block:  5 * time.Second,
		lastID: "$",
	}
}

// Run tails the stream until ctx is cancelled.
func (c *RedisConsumer) Run(ctx context.Context) {
	c.logger.Info("change feed consumer started", zap.String("stream", c.stream))
	for {
		if ctx.Err() != nil {
			c.logger.Info("change feed consumer stopped")
			return
		}
		if _, err := c.readOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Warn("change feed read failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// readOnce forwards one batch and returns how many changes were forwarded.
func (c *RedisConsumer) readOnce(ctx context.Context) (int, error) {
	streams, err := c.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{c.stream, c.lastID},
		Count:   100,
		Block:   c.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	var forwarded []Change
	for _, s := range streams {
		for _, msg := range s.Messages {
			c.lastID = msg.ID
			raw, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			change, err := decode([]byte(raw))
			if err != nil {
				c.logger.Warn("skipping undecodable change", zap.String("id", msg.ID), zap.Error(err))
				continue
			}
			if change.Origin == c.origin {
				continue
			}
			forwarded = append(forwarded, change)
		}
	}
	if len(forwarded) == 0 {
		return 0, nil
	}
	return len(forwarded), c.sink.Publish(ctx, forwarded...)
}
