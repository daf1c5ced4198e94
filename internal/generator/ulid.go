package generator

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
)

// ULIDGenerator generates ULIDs. Entropy is monotonic within a millisecond,
// so IDs from one generator sort in issuance order.
type ULIDGenerator struct {
	mu      sync.Mutex
	clock   Clock
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator creates a new ULIDGenerator. A nil clock means SystemClock.
func NewULIDGenerator(clock Clock) *ULIDGenerator {
	if clock == nil {
		clock = SystemClock
	}
	return &ULIDGenerator{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *ULIDGenerator) Kind() Kind { return KindULID }

func (g *ULIDGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(uint64(g.clock.NowMillis()), g.entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate ULID: %w", err)
	}
	return id.String(), nil
}

func (g *ULIDGenerator) GenerateBatch(count int) ([]string, error) {
	return generateBatch(count, g.Generate)
}

func (g *ULIDGenerator) Validate(id string) (bool, string) {
	if len(id) != ulid.EncodedSize {
		return false, fmt.Sprintf("expected length %d, got %d", ulid.EncodedSize, len(id))
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return false, fmt.Sprintf("invalid ULID format: %v", err)
	}
	return true, ""
}

func (g *ULIDGenerator) Parse(id string) (*ParseResult, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return nil, fmt.Errorf("invalid ULID format: %w", err)
	}

	return &ParseResult{
		Kind:          KindULID,
		TimestampMs:   int64(parsed.Time()),
		RandomPayload: hex.EncodeToString(parsed.Entropy()),
	}, nil
}
