package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/dispatch"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/generator"
)

// Command names served by the identifier service.
const (
	CmdSnowflake = "ID.SNOWFLAKE"
	CmdUUIDv1    = "ID.UUIDV1"
	CmdUUIDv4    = "ID.UUIDV4"
	CmdNext      = "ID.NEXT"
	CmdBatch     = "ID.BATCH"
	CmdValidate  = "ID.VALIDATE"
	CmdParse     = "ID.PARSE"
	CmdInfo      = "ID.INFO"

	// LegacyPrefix is accepted in front of the three core commands.
	LegacyPrefix = "UNIQUEID."
)

// RegisterCommands wires the identifier commands into r.
func RegisterCommands(r *dispatch.Router, svc IdentifierService) {
	r.Handle(CmdSnowflake, func(ctx context.Context, args []string) (any, error) {
		if err := dispatch.ExactArgs(CmdSnowflake, args, 0); err != nil {
			return nil, err
		}
		return svc.Snowflake(ctx)
	}, LegacyPrefix+"SNOWFLAKE")

	r.Handle(CmdUUIDv1, func(ctx context.Context, args []string) (any, error) {
		if err := dispatch.ExactArgs(CmdUUIDv1, args, 0); err != nil {
			return nil, err
		}
		return svc.UUIDv1(ctx)
	}, LegacyPrefix+"UUIDV1")

	r.Handle(CmdUUIDv4, func(ctx context.Context, args []string) (any, error) {
		if err := dispatch.ExactArgs(CmdUUIDv4, args, 0); err != nil {
			return nil, err
		}
		return svc.UUIDv4(ctx)
	}, LegacyPrefix+"UUIDV4")

	r.Handle(CmdNext, func(ctx context.Context, args []string) (any, error) {
		if err := dispatch.ExactArgs(CmdNext, args, 1); err != nil {
			return nil, err
		}
		kind, err := parseKind(args[0])
		if err != nil {
			return nil, err
		}
		return svc.Generate(ctx, kind)
	})

	r.Handle(CmdBatch, func(ctx context.Context, args []string) (any, error) {
		if err := dispatch.ExactArgs(CmdBatch, args, 2); err != nil {
			return nil, err
		}
		kind, err := parseKind(args[0])
		if err != nil {
			return nil, err
		}
		count, err := strconv.Atoi(args[1])
		if err != nil || count < 1 || count > generator.MaxBatchSize {
			return nil, fmt.Errorf("%w: count must be an integer between 1 and %d", dispatch.ErrUsage, generator.MaxBatchSize)
		}

		ids, err := svc.GenerateBatch(ctx, kind, count)
		if err != nil {
			return nil, err
		}
		reply := make([]any, len(ids))
		for i, id := range ids {
			reply[i] = id
		}
		return reply, nil
	})

	r.Handle(CmdValidate, func(ctx context.Context, args []string) (any, error) {
		if err := dispatch.ExactArgs(CmdValidate, args, 2); err != nil {
			return nil, err
		}
		kind, err := parseKind(args[0])
		if err != nil {
			return nil, err
		}
		valid, reason, err := svc.Validate(ctx, kind, args[1])
		if err != nil {
			return nil, err
		}
		if valid {
			return []any{int64(1), reason}, nil
		}
		return []any{int64(0), reason}, nil
	})

	r.Handle(CmdParse, func(ctx context.Context, args []string) (any, error) {
		if err := dispatch.ExactArgs(CmdParse, args, 2); err != nil {
			return nil, err
		}
		kind, err := parseKind(args[0])
		if err != nil {
			return nil, err
		}
		result, err := svc.Parse(ctx, kind, args[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", dispatch.ErrUsage, err)
		}
		return result.Fields(), nil
	})

	r.Handle(CmdInfo, func(ctx context.Context, args []string) (any, error) {
		if err := dispatch.ExactArgs(CmdInfo, args, 0); err != nil {
			return nil, err
		}
		info := svc.Info()
		kinds := make([]any, len(info.Kinds))
		for i, k := range info.Kinds {
			kinds[i] = string(k)
		}
		return []any{
			"region_id", info.RegionID,
			"worker_id", info.WorkerID,
			"epoch", info.Epoch,
			"kinds", kinds,
		}, nil
	})
}

func parseKind(s string) (generator.Kind, error) {
	kind, err := generator.ParseKind(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", dispatch.ErrUsage, err)
	}
	return kind, nil
}
