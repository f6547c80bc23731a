package queue

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestActivityEvent_RoundTripThroughStreamValues(t *testing.T) {
	event := NewFriendRequestSentEvent(7, 1, 2)

	values, err := event.ToMap()
	require.NoError(t, err)
	assert.Equal(t, EventFriendRequestSent, values["type"])

	parsed, err := ParseActivityEvent(values)
	require.NoError(t, err)
	assert.Equal(t, event, parsed)
}

func TestParseActivityEvent_MissingData(t *testing.T) {
	_, err := ParseActivityEvent(map[string]interface{}{"type": EventPointsChanged})
	assert.Error(t, err)
}

func TestPublishReadAck(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)
	pub := NewPublisher(client, slog.Default())
	con := NewConsumer(client, slog.Default())

	require.NoError(t, con.EnsureGroup(ctx, StreamActivity, ConsumerGroupActivity))
	require.NoError(t, con.EnsureGroup(ctx, StreamActivity, ConsumerGroupActivity), "second call is a no-op")

	id, err := pub.Publish(ctx, StreamActivity, NewPointsChangedEvent(42))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := con.Read(ctx, StreamActivity, ConsumerGroupActivity, "worker-1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, EventPointsChanged, msgs[0].Event.Type)
	assert.Equal(t, int64(42), msgs[0].Event.UserID)

	pending, err := con.Pending(ctx, StreamActivity, ConsumerGroupActivity)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	replay, err := con.ReadPending(ctx, StreamActivity, ConsumerGroupActivity, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, replay, 1)

	require.NoError(t, con.Ack(ctx, StreamActivity, ConsumerGroupActivity, id))

	pending, err = con.Pending(ctx, StreamActivity, ConsumerGroupActivity)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, string, ActivityEvent) (string, error) {
	p.calls++
	return "", assert.AnError
}

func TestPublishAfterCommit_SwallowsErrors(t *testing.T) {
	p := &failingPublisher{}

	PublishAfterCommit(context.Background(), p, slog.Default(), NewPointsChangedEvent(1))
	PublishAfterCommit(context.Background(), nil, slog.Default(), NewPointsChangedEvent(1))

	assert.Equal(t, 1, p.calls)
}
