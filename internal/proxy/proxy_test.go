package proxy

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/dispatch"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/generator"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/service"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/pubsub"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*pubsub.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type call struct {
	name string
	args []string
}

// fakeInvoker records calls and answers from a table keyed by command name.
type fakeInvoker struct {
	calls   []call
	replies map[string]any
	errs    map[string]error
}

func (f *fakeInvoker) Invoke(_ context.Context, name string, args []string) (any, error) {
	f.calls = append(f.calls, call{name: name, args: append([]string(nil), args...)})
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	return f.replies[name], nil
}

type fixture struct {
	mr        *miniredis.Miniredis
	router    *dispatch.Router
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { client.Close() })

	sf, err := generator.NewSnowflakeGenerator(generator.SnowflakeConfig{RegionID: 1, WorkerID: 2})
	require.NoError(t, err)
	svc, err := service.NewIdentifierService(sf)
	require.NoError(t, err)

	router := dispatch.NewRouter(dispatch.NewRedisBackendFromClient(client))
	service.RegisterCommands(router, svc)

	pub := &recordingPublisher{}
	New(router, WithPublisher(pub, "")).Register(router)

	return &fixture{mr: mr, router: router, publisher: pub}
}

func (f *fixture) exec(t *testing.T, args ...string) ([]any, error) {
	t.Helper()
	v, err := f.router.Invoke(context.Background(), "ID.EXEC", args)
	if err != nil {
		return nil, err
	}
	reply, ok := v.([]any)
	require.True(t, ok, "ID.EXEC reply must be an array, got %T", v)
	require.Len(t, reply, 2)
	return reply, nil
}

func (f *fixture) snowflake(t *testing.T) int64 {
	t.Helper()
	v, err := f.router.Invoke(context.Background(), "ID.SNOWFLAKE", nil)
	require.NoError(t, err)
	return v.(int64)
}

func TestExec_SetWithSnowflakeToken(t *testing.T) {
	f := newFixture(t)

	before := f.snowflake(t)
	reply, err := f.exec(t, "SET", TokenSnowflake, "somevalue")
	require.NoError(t, err)
	after := f.snowflake(t)

	id, ok := reply[0].(int64)
	require.True(t, ok, "generated snowflake must be an integer, got %T", reply[0])
	assert.Equal(t, "OK", reply[1])
	assert.Greater(t, id, before)
	assert.Less(t, id, after)

	stored, err := f.mr.Get(strconv.FormatInt(id, 10))
	require.NoError(t, err)
	assert.Equal(t, "somevalue", stored)
	assert.False(t, f.mr.Exists(TokenSnowflake))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, pubsub.EventIDSpent, f.publisher.events[0].Type)
	var payload pubsub.IssuancePayload
	require.NoError(t, f.publisher.events[0].UnmarshalPayload(&payload))
	assert.Equal(t, strconv.FormatInt(id, 10), payload.ID)
	assert.Equal(t, "snowflake", payload.Kind)
	assert.Equal(t, "SET", payload.Target)
}

func TestExec_NoTokenForwardsUnchanged(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mr.Set("somekey", "v1"))

	reply, err := f.exec(t, "GET", "somekey")
	require.NoError(t, err)
	assert.Nil(t, reply[0])
	assert.Equal(t, "v1", reply[1])

	reply, err = f.exec(t, "get", "missing")
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil}, reply)

	assert.Empty(t, f.publisher.events)
}

func TestExec_OnlyFirstTokenSubstituted(t *testing.T) {
	f := newFixture(t)

	reply, err := f.exec(t, "SET", TokenUUIDv1, TokenUUIDv4)
	require.NoError(t, err)

	key, ok := reply[0].(string)
	require.True(t, ok)
	assert.Len(t, key, 36)
	assert.Equal(t, "1", key[14:15])
	assert.Equal(t, "OK", reply[1])

	stored, err := f.mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, TokenUUIDv4, stored)
}

func TestExec_LegacyAlias(t *testing.T) {
	f := newFixture(t)

	v, err := f.router.Invoke(context.Background(), "uniqueid.exec", []string{"SET", TokenUUIDv4, "x"})
	require.NoError(t, err)
	reply := v.([]any)
	assert.Equal(t, "4", reply[0].(string)[14:15])
}

func TestExec_TargetFailurePropagates(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mr.Set("plain", "string"))

	_, err := f.exec(t, "LPUSH", "plain", TokenUUIDv4)
	require.Error(t, err)
	assert.ErrorIs(t, err, dispatch.ErrTargetFailure)
	assert.NotErrorIs(t, err, ErrSubCallFailure)

	var rerr *dispatch.ReplyError
	require.True(t, errors.As(err, &rerr))
	assert.Contains(t, rerr.Message, "WRONGTYPE")

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, pubsub.EventIDWasted, f.publisher.events[0].Type)
	var payload pubsub.IssuancePayload
	require.NoError(t, f.publisher.events[0].UnmarshalPayload(&payload))
	assert.Len(t, payload.ID, 36)
	assert.NotEmpty(t, payload.Error)
}

func TestExec_UsageError(t *testing.T) {
	f := newFixture(t)

	_, err := f.exec(t)
	assert.ErrorIs(t, err, dispatch.ErrUsage)
}

func TestExecute_SubCallFailureSkipsTarget(t *testing.T) {
	inv := &fakeInvoker{errs: map[string]error{
		service.CmdSnowflake: generator.ErrClockRegression,
	}}
	p := New(inv)

	_, err := p.Execute(context.Background(), []string{"SET", TokenSnowflake, "v"})
	require.ErrorIs(t, err, ErrSubCallFailure)
	assert.ErrorIs(t, err, generator.ErrClockRegression)

	require.Len(t, inv.calls, 1)
	assert.Equal(t, service.CmdSnowflake, inv.calls[0].name)
}

func TestExecute_UnexpectedSubCallReply(t *testing.T) {
	inv := &fakeInvoker{replies: map[string]any{service.CmdUUIDv4: []any{"nope"}}}

	_, err := New(inv).Execute(context.Background(), []string{"SET", TokenUUIDv4})
	require.ErrorIs(t, err, ErrSubCallFailure)
	assert.Len(t, inv.calls, 1)
}

func TestExecute_TargetNameIsNeverScanned(t *testing.T) {
	inv := &fakeInvoker{replies: map[string]any{TokenSnowflake: "ran"}}

	reply, err := New(inv).Execute(context.Background(), []string{TokenSnowflake, "a"})
	require.NoError(t, err)
	assert.Nil(t, reply.Generated)
	assert.Equal(t, "ran", reply.Result)

	require.Len(t, inv.calls, 1)
	assert.Equal(t, call{name: TokenSnowflake, args: []string{"a"}}, inv.calls[0])
}

func TestExecute_DoesNotMutateCallerArgs(t *testing.T) {
	inv := &fakeInvoker{replies: map[string]any{service.CmdUUIDv4: "0b9f4f8e-2f43-4c89-9d6c-7d1d2b6e7c11", "SET": "OK"}}
	args := []string{"SET", TokenUUIDv4, "v"}

	reply, err := New(inv).Execute(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET", TokenUUIDv4, "v"}, args)
	assert.Equal(t, []any{"0b9f4f8e-2f43-4c89-9d6c-7d1d2b6e7c11", "OK"}, reply.Values())
	assert.Equal(t, []string{"0b9f4f8e-2f43-4c89-9d6c-7d1d2b6e7c11", "v"}, inv.calls[1].args)
}
