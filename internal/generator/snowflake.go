package generator

import (
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"
)

const (
	timestampBits = 41
	regionIDBits  = 5
	workerIDBits  = 5
	sequenceBits  = 12

	MaxRegionID  = (1 << regionIDBits) - 1 // 31
	MaxWorkerID  = (1 << workerIDBits) - 1 // 31
	maxSequence  = (1 << sequenceBits) - 1  // 4095
	maxTimestamp = (1 << timestampBits) - 1

	workerIDShift  = sequenceBits
	regionIDShift  = sequenceBits + workerIDBits
	timestampShift = sequenceBits + workerIDBits + regionIDBits
)

const (
	// DefaultEpoch is 2024-01-01T00:00:00Z in unix milliseconds.
	DefaultEpoch int64 = 1704067200000

	// DefaultMaxBackward is how far the clock may step back before a
	// generation fails instead of waiting for it to catch up.
	DefaultMaxBackward = 5 * time.Millisecond

	// NoBackwardTolerance makes any clock regression fail immediately.
	NoBackwardTolerance time.Duration = -1
)

// SnowflakeConfig configures a SnowflakeGenerator.
type SnowflakeConfig struct {
	RegionID    int64
	WorkerID    int64
	Epoch       int64         // custom epoch in unix ms, DefaultEpoch when zero
	MaxBackward time.Duration // tolerated clock regression, DefaultMaxBackward when zero, none when negative
	Clock       Clock         // SystemClock when nil
}

// SnowflakeGenerator generates 64-bit snowflake IDs laid out as
// 1 reserved bit, 41 bits of ms since epoch, 5 bits region, 5 bits worker
// and a 12-bit sequence.
type SnowflakeGenerator struct {
	mu            sync.Mutex
	clock         Clock
	sleep         func(time.Duration)
	epoch         int64
	regionID      int64
	workerID      int64
	maxBackwardMs int64

	// guarded by mu
	sequence int64
	lastTime int64
}

// NewSnowflakeGenerator validates the coordinates and returns a generator.
// regionID must be in [0, 31] and workerID in [0, 31].
func NewSnowflakeGenerator(cfg SnowflakeConfig) (*SnowflakeGenerator, error) {
	if cfg.RegionID < 0 || cfg.RegionID > MaxRegionID {
		return nil, fmt.Errorf("%w: region_id must be between 0 and %d, got %d", ErrInvalidConfiguration, MaxRegionID, cfg.RegionID)
	}
	if cfg.WorkerID < 0 || cfg.WorkerID > MaxWorkerID {
		return nil, fmt.Errorf("%w: worker_id must be between 0 and %d, got %d", ErrInvalidConfiguration, MaxWorkerID, cfg.WorkerID)
	}

	g := &SnowflakeGenerator{
		clock:         cfg.Clock,
		sleep:         time.Sleep,
		epoch:         cfg.Epoch,
		regionID:      cfg.RegionID,
		workerID:      cfg.WorkerID,
		maxBackwardMs: cfg.MaxBackward.Milliseconds(),
	}
	if g.clock == nil {
		g.clock = SystemClock
	}
	if g.epoch == 0 {
		g.epoch = DefaultEpoch
	}
	switch {
	case cfg.MaxBackward == 0:
		g.maxBackwardMs = DefaultMaxBackward.Milliseconds()
	case cfg.MaxBackward < 0:
		g.maxBackwardMs = 0
	}

	now := g.clock.NowMillis()
	if now < g.epoch {
		return nil, fmt.Errorf("%w: epoch %d is in the future", ErrInvalidConfiguration, g.epoch)
	}
	if now-g.epoch > maxTimestamp {
		return nil, fmt.Errorf("%w: epoch %d is too old for a %d-bit timestamp", ErrInvalidConfiguration, g.epoch, timestampBits)
	}
	return g, nil
}

func (g *SnowflakeGenerator) Kind() Kind { return KindSnowflake }

func (g *SnowflakeGenerator) RegionID() int64 { return g.regionID }

func (g *SnowflakeGenerator) WorkerID() int64 { return g.workerID }

func (g *SnowflakeGenerator) Epoch() int64 { return g.epoch }

// NextID returns the next identifier as an integer.
func (g *SnowflakeGenerator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextLocked()
}

func (g *SnowflakeGenerator) Generate() (string, error) {
	id, err := g.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (g *SnowflakeGenerator) GenerateBatch(count int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return generateBatch(count, func() (string, error) {
		id, err := g.nextLocked()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(id, 10), nil
	})
}

// nextLocked must be called with g.mu held. State is only committed once an
// ID is certain to be returned, so a failed call never rewinds the sequence.
func (g *SnowflakeGenerator) nextLocked() (int64, error) {
	now := g.clock.NowMillis()

	if now < g.lastTime {
		var err error
		if now, err = g.waitForClock(now); err != nil {
			return 0, err
		}
	}

	var seq int64
	if now == g.lastTime {
		seq = (g.sequence + 1) & maxSequence
		if seq == 0 {
			// Sequence exhausted, wait for next millisecond
			var err error
			if now, err = g.tilNextMillis(); err != nil {
				return 0, err
			}
		}
	}

	ts := now - g.epoch
	if ts < 0 {
		return 0, fmt.Errorf("%w: current time %d is before epoch %d", ErrClockRegression, now, g.epoch)
	}
	if ts > maxTimestamp {
		return 0, fmt.Errorf("timestamp overflow: %d ms since epoch exceeds %d bits", ts, timestampBits)
	}

	g.sequence = seq
	g.lastTime = now

	return (ts << timestampShift) | (g.regionID << regionIDShift) | (g.workerID << workerIDShift) | seq, nil
}

// SnowflakeParts is a decoded snowflake ID.
type SnowflakeParts struct {
	TimestampMs int64 // absolute unix ms
	RegionID    int64
	WorkerID    int64
	Sequence    int64
}

// DecomposeSnowflake splits id into its fields using epoch.
func DecomposeSnowflake(id int64, epoch int64) SnowflakeParts {
	return SnowflakeParts{
		TimestampMs: ((id >> timestampShift) & maxTimestamp) + epoch,
		RegionID:    (id >> regionIDShift) & MaxRegionID,
		WorkerID:    (id >> workerIDShift) & MaxWorkerID,
		Sequence:    id & maxSequence,
	}
}

func (g *SnowflakeGenerator) Validate(id string) (bool, string) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false, "invalid integer format"
	}
	if n <= 0 {
		return false, "id must be a positive integer"
	}

	parts := DecomposeSnowflake(n, g.epoch)
	if parts.TimestampMs > g.clock.NowMillis() {
		return false, "timestamp is in the future"
	}
	return true, ""
}

func (g *SnowflakeGenerator) Parse(id string) (*ParseResult, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer format: %w", err)
	}
	if n <= 0 {
		return nil, fmt.Errorf("id must be a positive integer")
	}

	parts := DecomposeSnowflake(n, g.epoch)
	return &ParseResult{
		Kind:        KindSnowflake,
		TimestampMs: parts.TimestampMs,
		RegionID:    parts.RegionID,
		WorkerID:    parts.WorkerID,
		Sequence:    parts.Sequence,
	}, nil
}
