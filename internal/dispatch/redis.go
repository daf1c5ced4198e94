package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the downstream Redis.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ReplyError is an error reply produced by the backend server itself,
// e.g. "WRONGTYPE Operation against a key holding the wrong kind of value".
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string { return e.Message }

func (e *ReplyError) Unwrap() error { return ErrTargetFailure }

// RedisBackend forwards arbitrary commands to a Redis server.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Protocol:     2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisBackendFromClient(client), nil
}

// NewRedisBackendFromClient wraps an existing client. The client should
// speak RESP2 so replies keep their plain shapes.
func NewRedisBackendFromClient(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// Invoke implements Invoker by sending name and args as one command.
func (b *RedisBackend) Invoke(ctx context.Context, name string, args []string) (any, error) {
	cmdArgs := make([]any, 0, len(args)+1)
	cmdArgs = append(cmdArgs, name)
	for _, a := range args {
		cmdArgs = append(cmdArgs, a)
	}

	res, err := b.client.Do(ctx, cmdArgs...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, targetError(err)
	}
	return normalizeReply(res), nil
}

// Close closes the underlying client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func targetError(err error) error {
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return &ReplyError{Message: rerr.Error()}
	}
	return fmt.Errorf("%w: %w", ErrTargetFailure, err)
}

// normalizeReply converts go-redis reply values into the Invoker reply set.
func normalizeReply(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeReply(item)
		}
		return out
	case redis.Error:
		return &ReplyError{Message: val.Error()}
	case error:
		return val
	case int64, string, nil:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
