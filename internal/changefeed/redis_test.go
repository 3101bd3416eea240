package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisRoundTrip(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	remote := NewRedisPublisher(client, "htn:changes", "instance-b")
	local := NewRedisPublisher(client, "htn:changes", "instance-a")

	sink := &recordingPublisher{}
	consumer := NewRedisConsumer(client, "htn:changes", "instance-a", sink, zap.NewNop())
	consumer.lastID = "0"
	consumer.block = -1

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, remote.Publish(ctx, NewChange(TableReadings, EventInsert, "r1", "p1", at)))
	require.NoError(t, local.Publish(ctx, NewChange(TableReadings, EventInsert, "r2", "p1", at)))

	n, err := consumer.readOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, sink.changes, 1)
	assert.Equal(t, "r1", sink.changes[0].RowID)
	assert.Equal(t, "instance-b", sink.changes[0].Origin)
	assert.True(t, at.Equal(sink.changes[0].At))

	n, err = consumer.readOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRedisConsumer_RunStopsOnCancel(t *testing.T) {
	client := newTestRedis(t)
	consumer := NewRedisConsumer(client, "htn:changes", "a", &recordingPublisher{}, zap.NewNop())
	consumer.block = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
