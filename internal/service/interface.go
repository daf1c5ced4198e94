package service

import (
	"context"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/generator"
)

// IdentifierService defines the identifier operations exposed to callers.
type IdentifierService interface {
	Snowflake(ctx context.Context) (int64, error)
	UUIDv1(ctx context.Context) (string, error)
	UUIDv4(ctx context.Context) (string, error)
	// Generate returns one identifier of any registered kind.
	Generate(ctx context.Context, kind generator.Kind) (string, error)
	GenerateBatch(ctx context.Context, kind generator.Kind, count int) ([]string, error)
	Validate(ctx context.Context, kind generator.Kind, id string) (bool, string, error)
	Parse(ctx context.Context, kind generator.Kind, id string) (*generator.ParseResult, error)
	Info() Info
}

// Info describes the running generator instance.
type Info struct {
	RegionID int64            `json:"region_id"`
	WorkerID int64            `json:"worker_id"`
	Epoch    int64            `json:"epoch"`
	Kinds    []generator.Kind `json:"kinds"`
}
