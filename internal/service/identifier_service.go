package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/generator"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/log"
)

type identifierService struct {
	snowflake  *generator.SnowflakeGenerator
	generators map[generator.Kind]generator.Generator
}

// NewIdentifierService creates the identifier service. The snowflake
// generator is mandatory; UUID v1/v4 generators are added when extra does
// not provide them.
func NewIdentifierService(snowflake *generator.SnowflakeGenerator, extra ...generator.Generator) (IdentifierService, error) {
	if snowflake == nil {
		return nil, fmt.Errorf("%w: snowflake generator is required", generator.ErrInvalidConfiguration)
	}

	gens := map[generator.Kind]generator.Generator{
		generator.KindSnowflake: snowflake,
		generator.KindUUIDv1:    generator.NewUUIDv1Generator(),
		generator.KindUUIDv4:    generator.NewUUIDv4Generator(),
	}
	for _, g := range extra {
		if g.Kind() == generator.KindSnowflake {
			return nil, fmt.Errorf("%w: snowflake generator registered twice", generator.ErrInvalidConfiguration)
		}
		gens[g.Kind()] = g
	}

	return &identifierService{
		snowflake:  snowflake,
		generators: gens,
	}, nil
}

func (s *identifierService) getGenerator(kind generator.Kind) (generator.Generator, error) {
	gen, ok := s.generators[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", generator.ErrUnknownKind, kind)
	}
	return gen, nil
}

func (s *identifierService) Snowflake(ctx context.Context) (int64, error) {
	id, err := s.snowflake.NextID()
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("snowflake generation failed")
		return 0, err
	}
	return id, nil
}

func (s *identifierService) UUIDv1(ctx context.Context) (string, error) {
	return s.Generate(ctx, generator.KindUUIDv1)
}

func (s *identifierService) UUIDv4(ctx context.Context) (string, error) {
	return s.Generate(ctx, generator.KindUUIDv4)
}

func (s *identifierService) Generate(ctx context.Context, kind generator.Kind) (string, error) {
	gen, err := s.getGenerator(kind)
	if err != nil {
		return "", err
	}

	id, err := gen.Generate()
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldIDKind, string(kind)).Msg("id generation failed")
		return "", err
	}
	return id, nil
}

func (s *identifierService) GenerateBatch(ctx context.Context, kind generator.Kind, count int) ([]string, error) {
	gen, err := s.getGenerator(kind)
	if err != nil {
		return nil, err
	}

	ids, err := gen.GenerateBatch(count)
	if err != nil {
		return nil, fmt.Errorf("failed to generate batch IDs: %w", err)
	}
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldIDKind, string(kind)).Int("count", len(ids)).Msg("batch generated")
	return ids, nil
}

func (s *identifierService) Validate(ctx context.Context, kind generator.Kind, id string) (bool, string, error) {
	gen, err := s.getGenerator(kind)
	if err != nil {
		return false, "", err
	}
	valid, reason := gen.Validate(id)
	return valid, reason, nil
}

func (s *identifierService) Parse(ctx context.Context, kind generator.Kind, id string) (*generator.ParseResult, error) {
	gen, err := s.getGenerator(kind)
	if err != nil {
		return nil, err
	}
	return gen.Parse(id)
}

func (s *identifierService) Info() Info {
	kinds := make([]generator.Kind, 0, len(s.generators))
	for k := range s.generators {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return Info{
		RegionID: s.snowflake.RegionID(),
		WorkerID: s.snowflake.WorkerID(),
		Epoch:    s.snowflake.Epoch(),
		Kinds:    kinds,
	}
}
