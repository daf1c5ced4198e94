package generator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfiguration is returned when a generator is built with
	// parameters it cannot honour (coordinates out of range, bad epoch...).
	ErrInvalidConfiguration = errors.New("invalid generator configuration")

	// ErrClockRegression is returned when the clock moved backwards further
	// than the generator tolerates.
	ErrClockRegression = errors.New("clock moved backwards")

	// ErrUnknownKind is returned for an ID kind nobody registered.
	ErrUnknownKind = errors.New("unknown id kind")
)

// MaxBatchSize bounds GenerateBatch.
const MaxBatchSize = 1000

// Kind names an identifier scheme.
type Kind string

const (
	KindSnowflake Kind = "snowflake"
	KindUUIDv1    Kind = "uuidv1"
	KindUUIDv4    Kind = "uuidv4"
	KindULID      Kind = "ulid"
	KindKSUID     Kind = "ksuid"
	KindNanoID    Kind = "nanoid"
	KindCUID2     Kind = "cuid2"
	KindSonyflake Kind = "sonyflake"
)

// ParseKind maps a case-insensitive name onto a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindSnowflake, KindUUIDv1, KindUUIDv4, KindULID, KindKSUID, KindNanoID, KindCUID2, KindSonyflake:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Generator defines the interface for ID generation, validation, and parsing.
type Generator interface {
	Kind() Kind
	Generate() (string, error)
	GenerateBatch(count int) ([]string, error)
	Validate(id string) (bool, string) // (valid, reason)
	Parse(id string) (*ParseResult, error)
}

// ParseResult holds the parsed fields from an ID.
type ParseResult struct {
	Kind          Kind
	TimestampMs   int64  // Snowflake/Sonyflake/ULID/KSUID/UUIDv1: absolute unix ms
	RegionID      int64  // Snowflake only
	WorkerID      int64  // Snowflake only
	MachineID     int64  // Sonyflake only
	Sequence      int64  // Snowflake/Sonyflake
	UUIDVersion   int32  // UUID only
	UUIDVariant   string // UUID only ("RFC4122")
	NodeID        string // UUIDv1: hex-encoded node
	RandomPayload string // ULID/KSUID: hex-encoded random bytes
	IDLength      int32  // NanoID/CUID2: ID string length
	Alphabet      string // NanoID: character set used
}

// Fields flattens the result into name/value pairs relevant to its kind.
func (r *ParseResult) Fields() []any {
	fields := []any{"kind", string(r.Kind)}
	switch r.Kind {
	case KindSnowflake:
		fields = append(fields,
			"timestamp_ms", r.TimestampMs,
			"region_id", r.RegionID,
			"worker_id", r.WorkerID,
			"sequence", r.Sequence)
	case KindSonyflake:
		fields = append(fields,
			"timestamp_ms", r.TimestampMs,
			"machine_id", r.MachineID,
			"sequence", r.Sequence)
	case KindUUIDv1:
		fields = append(fields,
			"version", int64(r.UUIDVersion),
			"variant", r.UUIDVariant,
			"timestamp_ms", r.TimestampMs,
			"node_id", r.NodeID)
	case KindUUIDv4:
		fields = append(fields,
			"version", int64(r.UUIDVersion),
			"variant", r.UUIDVariant)
	case KindULID, KindKSUID:
		fields = append(fields,
			"timestamp_ms", r.TimestampMs,
			"random_payload", r.RandomPayload)
	case KindNanoID:
		fields = append(fields,
			"length", int64(r.IDLength),
			"alphabet", r.Alphabet)
	case KindCUID2:
		fields = append(fields, "length", int64(r.IDLength))
	}
	return fields
}

func generateBatch(count int, generate func() (string, error)) ([]string, error) {
	if count < 1 || count > MaxBatchSize {
		return nil, fmt.Errorf("count must be between 1 and %d, got %d", MaxBatchSize, count)
	}
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id, err := generate()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
