package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelToTopic(t *testing.T) {
	assert.Equal(t, "uniqueid-events", channelToTopic(DefaultChannel))
}

func TestNewPublisher_Drivers(t *testing.T) {
	p, err := NewPublisher(Config{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)
	require.NoError(t, p.Publish(context.Background(), DefaultChannel, &Event{}))

	_, err = NewPublisher(Config{Driver: "carrier-pigeon"})
	assert.Error(t, err)

	_, err = NewPublisher(Config{Driver: "kafka"})
	assert.Error(t, err)
}

func TestRedisPublisher_Publish(t *testing.T) {
	mr := miniredis.RunT(t)

	pub, err := NewRedisPublisher(RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer pub.Close()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()

	ctx := context.Background()
	ps := sub.Subscribe(ctx, DefaultChannel)
	defer ps.Close()
	_, err = ps.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	event, err := NewEvent(EventIDSpent, "test", IssuancePayload{ID: "42", Token: "$SNOWFLAKE$", Target: "SET"})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, DefaultChannel, event))

	select {
	case msg := <-ps.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, EventIDSpent, got.Type)

		var payload IssuancePayload
		require.NoError(t, got.UnmarshalPayload(&payload))
		assert.Equal(t, "42", payload.ID)
		assert.Equal(t, "SET", payload.Target)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestNewRedisPublisher_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisPublisher(RedisConfig{Address: addr})
	assert.Error(t, err)
}
