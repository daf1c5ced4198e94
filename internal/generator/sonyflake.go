package generator

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sony/sonyflake/v2"
)

// Sonyflake v2 default layout: 39 bits of 10ms ticks, 8-bit sequence,
// 16-bit machine id.
const (
	sonyflakeMachineBits  = 16
	sonyflakeSequenceBits = 8
	sonyflakeMachineMask  = (1 << sonyflakeMachineBits) - 1
	sonyflakeSequenceMask = (1 << sonyflakeSequenceBits) - 1
	sonyflakeTimeUnit     = 10 * time.Millisecond
)

// SonyflakeGenerator wraps sony/sonyflake. Its machine id is derived from
// the snowflake coordinates so both schemes stay disjoint per instance.
type SonyflakeGenerator struct {
	sf        *sonyflake.Sonyflake
	startTime time.Time
	machineID int64
	nextID    func() (int64, error)
}

// SonyflakeMachineID packs region and worker into one machine id.
func SonyflakeMachineID(regionID, workerID int64) int64 {
	return regionID<<workerIDBits | workerID
}

// NewSonyflakeGenerator creates a sonyflake generator for the given
// coordinates. epoch (unix ms) becomes the sonyflake start time.
func NewSonyflakeGenerator(regionID, workerID, epoch int64) (*SonyflakeGenerator, error) {
	if regionID < 0 || regionID > MaxRegionID || workerID < 0 || workerID > MaxWorkerID {
		return nil, fmt.Errorf("%w: coordinates (%d, %d) out of range", ErrInvalidConfiguration, regionID, workerID)
	}
	if epoch == 0 {
		epoch = DefaultEpoch
	}

	machineID := SonyflakeMachineID(regionID, workerID)
	startTime := time.UnixMilli(epoch)
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: startTime,
		MachineID: func() (int, error) {
			return int(machineID), nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sonyflake: %w", ErrInvalidConfiguration, err)
	}

	return &SonyflakeGenerator{
		sf:        sf,
		startTime: startTime,
		machineID: machineID,
		nextID:    sf.NextID,
	}, nil
}

func (g *SonyflakeGenerator) Kind() Kind { return KindSonyflake }

func (g *SonyflakeGenerator) Generate() (string, error) {
	id, err := g.nextID()
	if err != nil {
		if errors.Is(err, sonyflake.ErrOverTimeLimit) {
			return "", fmt.Errorf("sonyflake time component exhausted: %w", err)
		}
		return "", fmt.Errorf("failed to generate sonyflake ID: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (g *SonyflakeGenerator) GenerateBatch(count int) ([]string, error) {
	return generateBatch(count, g.Generate)
}

func (g *SonyflakeGenerator) decompose(n int64) *ParseResult {
	ticks := n >> (sonyflakeMachineBits + sonyflakeSequenceBits)
	return &ParseResult{
		Kind:        KindSonyflake,
		TimestampMs: g.startTime.Add(time.Duration(ticks) * sonyflakeTimeUnit).UnixMilli(),
		MachineID:   n & sonyflakeMachineMask,
		Sequence:    (n >> sonyflakeMachineBits) & sonyflakeSequenceMask,
	}
}

func (g *SonyflakeGenerator) Validate(id string) (bool, string) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false, "invalid integer format"
	}
	if n <= 0 {
		return false, "id must be a positive integer"
	}
	if g.decompose(n).TimestampMs > time.Now().UnixMilli()+sonyflakeTimeUnit.Milliseconds() {
		return false, "timestamp is in the future"
	}
	return true, ""
}

func (g *SonyflakeGenerator) Parse(id string) (*ParseResult, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer format: %w", err)
	}
	if n <= 0 {
		return nil, fmt.Errorf("id must be a positive integer")
	}
	return g.decompose(n), nil
}
