package audit

import (
	"context"

	"github.com/weiawesome/wes-io-live/uniqueid/pkg/log"
)

// Audit actions for identifier issuance.
const (
	ActionIDSpent     = "id.spent"
	ActionIDWasted    = "id.wasted"
	ActionSubCallFail = "id.subcall_failed"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, target string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldTarget, target).
		Msg(msg)
}

// LogIssued emits an audit entry for an identifier handed to a target.
func LogIssued(ctx context.Context, action string, target, token, id string, detail string) {
	l := log.Ctx(ctx)
	evt := l.Info()
	if action == ActionIDWasted {
		evt = l.Warn()
	}
	evt = evt.
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldTarget, target).
		Str(log.FieldToken, token).
		Str(log.FieldID, id)
	if detail != "" {
		evt = evt.Str(FieldDetail, detail)
	}
	evt.Msg("identifier issued")
}
