package proxy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/audit"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/dispatch"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/generator"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/service"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/log"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/pubsub"
)

// ErrSubCallFailure is returned when the identifier for a token could not
// be obtained. The target is never invoked in that case.
var ErrSubCallFailure = errors.New("identifier sub-call failed")

// Substitution tokens recognised in target arguments.
const (
	TokenSnowflake = "$SNOWFLAKE$"
	TokenUUIDv1    = "$UUIDV1$"
	TokenUUIDv4    = "$UUIDV4$"
)

// CmdExec is the proxy command name.
const CmdExec = "ID.EXEC"

const (
	eventSource           = "uniqueid"
	defaultPublishTimeout = 2 * time.Second
)

type tokenRoute struct {
	command string
	kind    generator.Kind
}

var tokens = map[string]tokenRoute{
	TokenSnowflake: {command: service.CmdSnowflake, kind: generator.KindSnowflake},
	TokenUUIDv1:    {command: service.CmdUUIDv1, kind: generator.KindUUIDv1},
	TokenUUIDv4:    {command: service.CmdUUIDv4, kind: generator.KindUUIDv4},
}

// IsToken reports whether s is a substitution token.
func IsToken(s string) bool {
	_, ok := tokens[s]
	return ok
}

// Reply is the composite result of one proxied invocation.
type Reply struct {
	// Generated is the substituted identifier in its native reply type
	// (int64 for snowflake, string for UUIDs), nil when nothing was substituted.
	Generated any
	Result    any
}

// Values returns the reply as the two-element [generated, result] array.
func (r *Reply) Values() []any {
	return []any{r.Generated, r.Result}
}

// Proxy rewrites one substitution token into a fresh identifier and
// forwards the command to its target.
type Proxy struct {
	invoker        dispatch.Invoker
	publisher      pubsub.Publisher
	channel        string
	publishTimeout time.Duration
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithPublisher publishes spent/wasted issuance events to channel.
func WithPublisher(p pubsub.Publisher, channel string) Option {
	return func(px *Proxy) {
		px.publisher = p
		if channel != "" {
			px.channel = channel
		}
	}
}

// WithPublishTimeout bounds each event publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(px *Proxy) { px.publishTimeout = d }
}

// New creates a Proxy. invoker serves both the identifier sub-calls and
// the target commands.
func New(invoker dispatch.Invoker, opts ...Option) *Proxy {
	p := &Proxy{
		invoker:        invoker,
		publisher:      pubsub.NopPublisher{},
		channel:        pubsub.DefaultChannel,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs args[0] with args[1:], substituting the first token found
// in args[1:]. Later tokens are forwarded literally.
func (p *Proxy) Execute(ctx context.Context, args []string) (*Reply, error) {
	if len(args) < 1 {
		return nil, dispatch.Usage(CmdExec)
	}

	target := args[0]
	forward := make([]string, len(args)-1)
	copy(forward, args[1:])

	l := log.Ctx(ctx)
	var (
		generated any
		token     string
		rendered  string
	)
	for i, arg := range forward {
		route, ok := tokens[arg]
		if !ok {
			continue
		}

		v, err := p.invoker.Invoke(ctx, route.command, nil)
		if err == nil {
			rendered, err = render(v)
		}
		if err != nil {
			audit.Log(ctx, audit.ActionSubCallFail, target, err.Error())
			return nil, fmt.Errorf("%w: %s: %w", ErrSubCallFailure, route.command, err)
		}

		forward[i] = rendered
		generated = v
		token = arg
		l.Debug().
			Str(log.FieldToken, token).
			Str(log.FieldID, rendered).
			Int("position", i+1).
			Msg("token substituted")
		break
	}

	result, err := p.invoker.Invoke(ctx, target, forward)
	if err != nil {
		if token != "" {
			audit.LogIssued(ctx, audit.ActionIDWasted, target, token, rendered, err.Error())
			p.publish(ctx, pubsub.EventIDWasted, pubsub.IssuancePayload{
				ID:     rendered,
				Kind:   string(tokens[token].kind),
				Token:  token,
				Target: target,
				Error:  err.Error(),
			})
		}
		return nil, err
	}

	if token != "" {
		audit.LogIssued(ctx, audit.ActionIDSpent, target, token, rendered, "")
		p.publish(ctx, pubsub.EventIDSpent, pubsub.IssuancePayload{
			ID:     rendered,
			Kind:   string(tokens[token].kind),
			Token:  token,
			Target: target,
		})
	}

	return &Reply{Generated: generated, Result: result}, nil
}

// Register wires the proxy into r under CmdExec and its legacy alias.
func (p *Proxy) Register(r *dispatch.Router) {
	r.Handle(CmdExec, func(ctx context.Context, args []string) (any, error) {
		reply, err := p.Execute(ctx, args)
		if err != nil {
			return nil, err
		}
		return reply.Values(), nil
	}, service.LegacyPrefix+"EXEC")
}

func (p *Proxy) publish(ctx context.Context, eventType string, payload pubsub.IssuancePayload) {
	l := log.Ctx(ctx)

	event, err := pubsub.NewEvent(eventType, eventSource, payload)
	if err != nil {
		l.Warn().Err(err).Str("event", eventType).Msg("failed to build issuance event")
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.publishTimeout)
	defer cancel()
	if err := p.publisher.Publish(pubCtx, p.channel, event); err != nil {
		l.Warn().Err(err).Str("event", eventType).Msg("failed to publish issuance event")
	}
}

// render turns an identifier reply into its argument form.
func render(v any) (string, error) {
	switch id := v.(type) {
	case int64:
		return strconv.FormatInt(id, 10), nil
	case string:
		if id == "" {
			return "", errors.New("empty identifier")
		}
		return id, nil
	default:
		return "", fmt.Errorf("unexpected identifier reply type %T", v)
	}
}
