package service

import (
	"context"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/dispatch"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/generator"
)

var canonicalUUID = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func newTestRouter(t *testing.T) (*dispatch.Router, IdentifierService) {
	t.Helper()

	sf, err := generator.NewSnowflakeGenerator(generator.SnowflakeConfig{RegionID: 3, WorkerID: 9})
	require.NoError(t, err)
	svc, err := NewIdentifierService(sf, generator.NewULIDGenerator(nil))
	require.NoError(t, err)

	r := dispatch.NewRouter(nil)
	RegisterCommands(r, svc)
	return r, svc
}

func TestNewIdentifierService_RequiresSnowflake(t *testing.T) {
	_, err := NewIdentifierService(nil)
	assert.ErrorIs(t, err, generator.ErrInvalidConfiguration)
}

func TestCommands_Snowflake(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	first, err := r.Invoke(ctx, "ID.SNOWFLAKE", nil)
	require.NoError(t, err)
	second, err := r.Invoke(ctx, "uniqueid.snowflake", nil)
	require.NoError(t, err)

	a, ok := first.(int64)
	require.True(t, ok, "snowflake reply must be an integer, got %T", first)
	b := second.(int64)
	assert.Greater(t, b, a)

	parts := generator.DecomposeSnowflake(b, generator.DefaultEpoch)
	assert.Equal(t, int64(3), parts.RegionID)
	assert.Equal(t, int64(9), parts.WorkerID)

	_, err = r.Invoke(ctx, "ID.SNOWFLAKE", []string{"extra"})
	assert.ErrorIs(t, err, dispatch.ErrUsage)
}

func TestCommands_UUIDs(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	for cmd, version := range map[string]string{"ID.UUIDV1": "1", "ID.UUIDV4": "4", "UNIQUEID.UUIDV4": "4"} {
		v, err := r.Invoke(ctx, cmd, nil)
		require.NoError(t, err, cmd)
		s, ok := v.(string)
		require.True(t, ok, cmd)
		assert.Len(t, s, 36)
		assert.Regexp(t, canonicalUUID, s)
		assert.Equal(t, version, s[14:15], cmd)
	}
}

func TestCommands_NextAndBatch(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	v, err := r.Invoke(ctx, "ID.NEXT", []string{"ULID"})
	require.NoError(t, err)
	assert.Len(t, v.(string), 26)

	v, err = r.Invoke(ctx, "ID.NEXT", []string{"snowflake"})
	require.NoError(t, err)
	_, err = strconv.ParseInt(v.(string), 10, 64)
	assert.NoError(t, err)

	_, err = r.Invoke(ctx, "ID.NEXT", []string{"ksuid"})
	assert.ErrorIs(t, err, generator.ErrUnknownKind, "ksuid was not registered")

	_, err = r.Invoke(ctx, "ID.NEXT", []string{"bogus"})
	assert.ErrorIs(t, err, dispatch.ErrUsage)

	v, err = r.Invoke(ctx, "ID.BATCH", []string{"uuidv4", "5"})
	require.NoError(t, err)
	ids := v.([]any)
	assert.Len(t, ids, 5)
	seen := map[any]bool{}
	for _, id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}

	for _, count := range []string{"0", "1001", "x"} {
		_, err = r.Invoke(ctx, "ID.BATCH", []string{"uuidv4", count})
		assert.ErrorIs(t, err, dispatch.ErrUsage, count)
	}
}

func TestCommands_ValidateAndParse(t *testing.T) {
	r, _ := newTestRouter(t)
	ctx := context.Background()

	id, err := r.Invoke(ctx, "ID.SNOWFLAKE", nil)
	require.NoError(t, err)
	idStr := strconv.FormatInt(id.(int64), 10)

	v, err := r.Invoke(ctx, "ID.VALIDATE", []string{"snowflake", idStr})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), ""}, v)

	v, err = r.Invoke(ctx, "ID.VALIDATE", []string{"uuidv4", idStr})
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.([]any)[0])

	v, err = r.Invoke(ctx, "ID.PARSE", []string{"snowflake", idStr})
	require.NoError(t, err)
	fields := v.([]any)
	require.Len(t, fields, 10)
	assert.Equal(t, []any{"kind", "snowflake"}, fields[:2])
	assert.Equal(t, []any{"region_id", int64(3), "worker_id", int64(9)}, fields[4:8])

	_, err = r.Invoke(ctx, "ID.PARSE", []string{"snowflake", "not-a-number"})
	assert.ErrorIs(t, err, dispatch.ErrUsage)
}

func TestCommands_Info(t *testing.T) {
	r, svc := newTestRouter(t)

	v, err := r.Invoke(context.Background(), "ID.INFO", nil)
	require.NoError(t, err)
	reply := v.([]any)
	require.Len(t, reply, 8)
	assert.Equal(t, int64(3), reply[1])
	assert.Equal(t, int64(9), reply[3])
	assert.Equal(t, generator.DefaultEpoch, reply[5])
	assert.Equal(t, []any{"snowflake", "ulid", "uuidv1", "uuidv4"}, reply[7])

	info := svc.Info()
	assert.Equal(t, []generator.Kind{generator.KindSnowflake, generator.KindULID, generator.KindUUIDv1, generator.KindUUIDv4}, info.Kinds)
}
