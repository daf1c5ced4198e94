package resp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/redcon"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/dispatch"
	pkglog "github.com/weiawesome/wes-io-live/uniqueid/pkg/log"
)

// Server speaks the Redis protocol and hands every command to an Invoker.
type Server struct {
	srv *redcon.Server

	mu sync.Mutex
	ln net.Listener

	invoker dispatch.Invoker
	logger  zerolog.Logger
}

// NewServer creates a RESP server for invoker. Call Serve to start it.
func NewServer(invoker dispatch.Invoker, logger zerolog.Logger) *Server {
	s := &Server{
		invoker: invoker,
		logger:  logger,
	}
	s.srv = redcon.NewServer("", s.handle, s.accept, s.closed)
	return s
}

// Serve accepts connections on ln until Close is called.
func (s *Server) Serve(ln net.Listener) error {
	s.setListener(ln)
	return s.srv.Serve(ln)
}

func (s *Server) setListener(ln net.Listener) {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
}

// Addr returns the listening address, nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting connections and closes open ones.
func (s *Server) Close() error {
	return s.srv.Close()
}

// StartRESPServer listens on addr and serves in a background goroutine.
func StartRESPServer(addr string, invoker dispatch.Invoker, logger zerolog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := NewServer(invoker, logger)
	s.setListener(lis)
	go func() {
		logger.Info().Str("addr", addr).Msg("resp server listening")
		if err := s.srv.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("resp server error")
		}
	}()

	return s, nil
}

func (s *Server) accept(conn redcon.Conn) bool {
	s.logger.Debug().Str(pkglog.FieldClientIP, conn.RemoteAddr()).Msg("resp client connected")
	return true
}

func (s *Server) closed(conn redcon.Conn, err error) {
	evt := s.logger.Debug()
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Str(pkglog.FieldClientIP, conn.RemoteAddr()).Msg("resp client disconnected")
}

func (s *Server) handle(conn redcon.Conn, cmd redcon.Command) {
	if len(cmd.Args) == 0 {
		conn.WriteError("ERR empty command")
		return
	}

	name := string(cmd.Args[0])
	args := make([]string, len(cmd.Args)-1)
	for i, a := range cmd.Args[1:] {
		args[i] = string(a)
	}

	if s.handleConnCommand(conn, name, args) {
		return
	}

	start := time.Now()
	child := s.logger.With().
		Str(pkglog.FieldCommand, strings.ToUpper(name)).
		Int(pkglog.FieldArgc, len(args)).
		Str(pkglog.FieldClientIP, conn.RemoteAddr()).
		Logger()
	ctx := pkglog.WithLogger(context.Background(), child)

	reply, err := s.invoker.Invoke(ctx, name, args)
	latency := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		child.Warn().Err(err).Float64(pkglog.FieldLatency, latency).Msg("command failed")
		writeError(conn, err)
		return
	}
	child.Debug().Float64(pkglog.FieldLatency, latency).Msg("command completed")
	writeReply(conn, reply)
}

// handleConnCommand answers connection-scoped commands that must never
// reach the backend. It reports whether name was one of them.
func (s *Server) handleConnCommand(conn redcon.Conn, name string, args []string) bool {
	switch strings.ToUpper(name) {
	case "PING":
		switch len(args) {
		case 0:
			conn.WriteString("PONG")
		case 1:
			conn.WriteBulkString(args[0])
		default:
			writeError(conn, dispatch.Usage("ping"))
		}
	case "ECHO":
		if len(args) != 1 {
			writeError(conn, dispatch.Usage("echo"))
			return true
		}
		conn.WriteBulkString(args[0])
	case "QUIT":
		conn.WriteString("OK")
		conn.Close()
	case "HELLO":
		// Only RESP2 is spoken; clients fall back on an error reply.
		conn.WriteError("NOPROTO unsupported protocol version")
	case "CLIENT":
		conn.WriteString("OK")
	default:
		return false
	}
	return true
}

func writeError(conn redcon.Conn, err error) {
	var rerr *dispatch.ReplyError
	if errors.As(err, &rerr) {
		conn.WriteError(rerr.Message)
		return
	}
	conn.WriteError("ERR " + strings.ReplaceAll(err.Error(), "\r\n", " "))
}

// writeReply encodes a dispatcher reply with the matching RESP type.
func writeReply(conn redcon.Conn, v any) {
	switch val := v.(type) {
	case nil:
		conn.WriteNull()
	case int64:
		conn.WriteInt64(val)
	case int:
		conn.WriteInt(val)
	case bool:
		if val {
			conn.WriteInt(1)
		} else {
			conn.WriteInt(0)
		}
	case string:
		conn.WriteBulkString(val)
	case []byte:
		conn.WriteBulk(val)
	case float64:
		conn.WriteBulkString(strconv.FormatFloat(val, 'f', -1, 64))
	case []string:
		conn.WriteArray(len(val))
		for _, item := range val {
			conn.WriteBulkString(item)
		}
	case []any:
		conn.WriteArray(len(val))
		for _, item := range val {
			writeReply(conn, item)
		}
	case error:
		writeError(conn, val)
	default:
		conn.WriteBulkString(fmt.Sprint(val))
	}
}
