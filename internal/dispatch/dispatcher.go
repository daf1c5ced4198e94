package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUsage reports a malformed invocation (wrong arity, bad argument).
	ErrUsage = errors.New("usage error")

	// ErrUnknownCommand is returned when no handler or backend can serve a command.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrTargetFailure wraps failures of commands forwarded to the backend.
	ErrTargetFailure = errors.New("target command failed")
)

// Invoker runs a named command and returns its reply. Replies are nil,
// int64, string, error or []any of those.
type Invoker interface {
	Invoke(ctx context.Context, name string, args []string) (any, error)
}

// HandlerFunc serves one locally registered command. args excludes the
// command name.
type HandlerFunc func(ctx context.Context, args []string) (any, error)

// Router dispatches commands case-insensitively to local handlers and
// falls back to a backend for everything else.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	backend  Invoker
}

// NewRouter creates a Router. backend may be nil, in which case unknown
// commands fail with ErrUnknownCommand.
func NewRouter(backend Invoker) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		backend:  backend,
	}
}

// Handle registers h under name and any aliases.
func (r *Router) Handle(name string, h HandlerFunc, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range append([]string{name}, aliases...) {
		r.handlers[strings.ToUpper(n)] = h
	}
}

// Commands lists the locally registered command names.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke implements Invoker.
func (r *Router) Invoke(ctx context.Context, name string, args []string) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[strings.ToUpper(name)]
	r.mu.RUnlock()

	if ok {
		return h(ctx, args)
	}
	if r.backend == nil {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownCommand, name)
	}
	return r.backend.Invoke(ctx, name, args)
}

// Usage builds the error for a command called with the wrong arguments.
func Usage(command string) error {
	return fmt.Errorf("%w: wrong number of arguments for '%s' command", ErrUsage, strings.ToLower(command))
}

// ExactArgs returns a Usage error unless len(args) == n.
func ExactArgs(command string, args []string, n int) error {
	if len(args) != n {
		return Usage(command)
	}
	return nil
}
