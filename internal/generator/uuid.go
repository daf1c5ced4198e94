package generator

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// UUIDGenerator generates RFC 4122 UUIDs, either time-based (v1) or random (v4).
type UUIDGenerator struct {
	version uuid.Version
	newUUID func() (uuid.UUID, error)
}

// NewUUIDv1Generator creates a generator for time-based UUIDs.
func NewUUIDv1Generator() *UUIDGenerator {
	return &UUIDGenerator{version: 1, newUUID: uuid.NewUUID}
}

// NewUUIDv4Generator creates a generator for random UUIDs.
func NewUUIDv4Generator() *UUIDGenerator {
	return &UUIDGenerator{version: 4, newUUID: uuid.NewRandom}
}

func (g *UUIDGenerator) Kind() Kind {
	if g.version == 1 {
		return KindUUIDv1
	}
	return KindUUIDv4
}

func (g *UUIDGenerator) Generate() (string, error) {
	id, err := g.newUUID()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID v%d: %w", g.version, err)
	}
	return id.String(), nil
}

func (g *UUIDGenerator) GenerateBatch(count int) ([]string, error) {
	return generateBatch(count, g.Generate)
}

func (g *UUIDGenerator) Validate(id string) (bool, string) {
	if len(id) != 36 {
		return false, fmt.Sprintf("expected length 36, got %d", len(id))
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false, fmt.Sprintf("invalid UUID format: %v", err)
	}
	if parsed.Version() != g.version {
		return false, fmt.Sprintf("expected UUID v%d, got v%d", g.version, parsed.Version())
	}
	return true, ""
}

func (g *UUIDGenerator) Parse(id string) (*ParseResult, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID format: %w", err)
	}

	var variantStr string
	switch parsed.Variant() {
	case uuid.RFC4122:
		variantStr = "RFC4122"
	case uuid.Reserved:
		variantStr = "Reserved"
	case uuid.Microsoft:
		variantStr = "Microsoft"
	case uuid.Future:
		variantStr = "Future"
	default:
		variantStr = "Unknown"
	}

	result := &ParseResult{
		Kind:        g.Kind(),
		UUIDVersion: int32(parsed.Version()),
		UUIDVariant: variantStr,
	}
	if parsed.Version() == 1 {
		sec, nsec := parsed.Time().UnixTime()
		result.TimestampMs = sec*1000 + nsec/1_000_000
		result.NodeID = hex.EncodeToString(parsed.NodeID())
	}
	return result, nil
}
