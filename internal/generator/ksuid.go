package generator

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
)

const ksuidEncodedLength = 27

// KSUIDGenerator generates KSUIDs (second-resolution, 128 random bits).
type KSUIDGenerator struct {
	clock Clock
}

// NewKSUIDGenerator creates a new KSUIDGenerator. A nil clock means SystemClock.
func NewKSUIDGenerator(clock Clock) *KSUIDGenerator {
	if clock == nil {
		clock = SystemClock
	}
	return &KSUIDGenerator{clock: clock}
}

func (g *KSUIDGenerator) Kind() Kind { return KindKSUID }

func (g *KSUIDGenerator) Generate() (string, error) {
	id, err := ksuid.NewRandomWithTime(time.UnixMilli(g.clock.NowMillis()))
	if err != nil {
		return "", fmt.Errorf("failed to generate KSUID: %w", err)
	}
	return id.String(), nil
}

func (g *KSUIDGenerator) GenerateBatch(count int) ([]string, error) {
	return generateBatch(count, g.Generate)
}

func (g *KSUIDGenerator) Validate(id string) (bool, string) {
	if len(id) != ksuidEncodedLength {
		return false, fmt.Sprintf("expected length %d, got %d", ksuidEncodedLength, len(id))
	}
	if _, err := ksuid.Parse(id); err != nil {
		return false, fmt.Sprintf("invalid KSUID format: %v", err)
	}
	return true, ""
}

func (g *KSUIDGenerator) Parse(id string) (*ParseResult, error) {
	parsed, err := ksuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid KSUID format: %w", err)
	}

	return &ParseResult{
		Kind:          KindKSUID,
		TimestampMs:   parsed.Time().UnixMilli(),
		RandomPayload: hex.EncodeToString(parsed.Payload()),
	}, nil
}
