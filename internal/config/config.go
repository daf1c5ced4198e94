package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/dispatch"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/generator"
	pkgconfig "github.com/weiawesome/wes-io-live/uniqueid/pkg/config"
	pkglog "github.com/weiawesome/wes-io-live/uniqueid/pkg/log"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/pubsub"
)

// DefaultCoordinate is used for a region or worker that is absent or unparseable.
const DefaultCoordinate int64 = 1

type Config struct {
	RESP      ServerConfig
	GRPC      ServerConfig
	HTTP      HTTPConfig
	Backend   BackendConfig
	Snowflake SnowflakeConfig
	NanoID    NanoIDConfig `mapstructure:"nanoid"`
	CUID2     CUID2Config  `mapstructure:"cuid2"`
	Events    pubsub.Config
	Auth      AuthConfig
	Log       pkglog.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type HTTPConfig struct {
	Host    string
	Port    int
	Enabled bool
}

type BackendConfig struct {
	Redis dispatch.RedisConfig
}

type SnowflakeConfig struct {
	// Coordinates are kept raw; see Coordinates.
	RegionID      string `mapstructure:"region_id"`
	WorkerID      string `mapstructure:"worker_id"`
	Epoch         int64
	MaxBackwardMs int64 `mapstructure:"max_backward_ms"`
}

type NanoIDConfig struct {
	Size     int    `mapstructure:"size"`
	Alphabet string `mapstructure:"alphabet"`
}

type CUID2Config struct {
	Length int `mapstructure:"length"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// FlagBindings maps config keys to the command-line flags that override them.
var FlagBindings = map[string]string{
	"snowflake.region_id":   "region",
	"snowflake.worker_id":   "worker",
	"resp.port":             "resp-port",
	"grpc.port":             "grpc-port",
	"http.port":             "http-port",
	"backend.redis.address": "redis-addr",
	"log.level":             "log-level",
}

// Load reads configuration from configDir, the environment and fs.
// fs may be nil.
func Load(configDir string, fs *pflag.FlagSet) (*Config, error) {
	v, err := pkgconfig.Load(configDir, "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("resp.host", "0.0.0.0")
	v.SetDefault("resp.port", 6380)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50053)
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8090)
	v.SetDefault("http.enabled", true)
	v.SetDefault("backend.redis.address", "")
	v.SetDefault("backend.redis.password", "")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.redis.pool_size", 10)
	v.SetDefault("backend.redis.read_timeout", 3*time.Second)
	v.SetDefault("backend.redis.write_timeout", 3*time.Second)
	v.SetDefault("snowflake.region_id", "")
	v.SetDefault("snowflake.worker_id", "")
	v.SetDefault("snowflake.epoch", generator.DefaultEpoch)
	v.SetDefault("snowflake.max_backward_ms", generator.DefaultMaxBackward.Milliseconds())
	v.SetDefault("nanoid.size", generator.DefaultNanoIDSize)
	v.SetDefault("nanoid.alphabet", generator.DefaultNanoIDAlphabet)
	v.SetDefault("cuid2.length", generator.DefaultCUID2Length)
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.channel", pubsub.DefaultChannel)
	v.SetDefault("events.redis.address", "localhost:6379")
	v.SetDefault("events.redis.pool_size", 10)
	v.SetDefault("events.redis.read_timeout", 3*time.Second)
	v.SetDefault("events.redis.write_timeout", 3*time.Second)
	v.SetDefault("events.kafka.brokers", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "uniqueid")

	// Override from environment
	v.BindEnv("resp.port", "RESP_PORT")
	v.BindEnv("grpc.port", "GRPC_PORT")
	v.BindEnv("http.port", "PORT")
	v.BindEnv("snowflake.region_id", "SNOWFLAKE_REGION_ID")
	v.BindEnv("snowflake.worker_id", "SNOWFLAKE_WORKER_ID")
	v.BindEnv("snowflake.epoch", "SNOWFLAKE_EPOCH")
	v.BindEnv("backend.redis.address", "REDIS_ADDRESS")
	v.BindEnv("backend.redis.password", "REDIS_PASSWORD")
	v.BindEnv("nanoid.size", "NANOID_SIZE")
	v.BindEnv("nanoid.alphabet", "NANOID_ALPHABET")
	v.BindEnv("cuid2.length", "CUID2_LENGTH")
	v.BindEnv("events.driver", "EVENTS_DRIVER")
	v.BindEnv("events.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("log.level", "LOG_LEVEL")

	if fs != nil {
		bindings := make(map[string]string, len(FlagBindings))
		for key, name := range FlagBindings {
			// Only flags the caller defined and actually set take part.
			if f := fs.Lookup(name); f != nil && f.Changed {
				bindings[key] = name
			}
		}
		if err := pkgconfig.BindFlags(v, fs, bindings); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Coordinates parses the region and worker settings. An absent or
// non-numeric value falls back to DefaultCoordinate with an info diagnostic.
// Numbers past the int64 range fail here, other range checks are left to the
// snowflake generator.
func (c SnowflakeConfig) Coordinates(logger zerolog.Logger) (regionID, workerID int64, err error) {
	if regionID, err = parseCoordinate(logger, pkglog.FieldRegionID, c.RegionID); err != nil {
		return 0, 0, err
	}
	if workerID, err = parseCoordinate(logger, pkglog.FieldWorkerID, c.WorkerID); err != nil {
		return 0, 0, err
	}
	return regionID, workerID, nil
}

// parseCoordinate falls back to DefaultCoordinate for absent or non-numeric
// values. A number too large to parse is out of range, not malformed.
func parseCoordinate(logger zerolog.Logger, name, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		logger.Info().Int64(name, DefaultCoordinate).Msgf("%s not set, using default", name)
		return DefaultCoordinate, nil
	}
	n, err := strconv.ParseUint(raw, 10, 63)
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%w: %s %s is out of range", generator.ErrInvalidConfiguration, name, raw)
	}
	if err != nil {
		logger.Info().Str("value", raw).Int64(name, DefaultCoordinate).Msgf("%s is not an unsigned integer, using default", name)
		return DefaultCoordinate, nil
	}
	return int64(n), nil
}

// MaxBackward returns the tolerated clock regression. Zero or a negative
// max_backward_ms disables the catch-up wait.
func (c SnowflakeConfig) MaxBackward() time.Duration {
	if c.MaxBackwardMs <= 0 {
		return generator.NoBackwardTolerance
	}
	return time.Duration(c.MaxBackwardMs) * time.Millisecond
}
