package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/dispatch"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/generator"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/proxy"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/service"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/log"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/middleware"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/response"
)

// Executor runs proxied commands.
type Executor interface {
	Execute(ctx context.Context, args []string) (*proxy.Reply, error)
}

// ExecRequest is the body of POST /api/v1/exec.
type ExecRequest struct {
	Args []string `json:"args" binding:"required,min=1"`
}

// ExecResponse mirrors the [generated, result] reply.
type ExecResponse struct {
	Generated any `json:"generated"`
	Result    any `json:"result"`
}

// IDsResponse carries generated identifiers.
type IDsResponse struct {
	Kind generator.Kind `json:"kind"`
	IDs  []string       `json:"ids"`
}

// ParseResponse carries a decoded identifier.
type ParseResponse struct {
	Kind   generator.Kind `json:"kind"`
	ID     string         `json:"id"`
	Valid  bool           `json:"valid"`
	Reason string         `json:"reason,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Handler handles HTTP requests for the identifier service.
type Handler struct {
	svc       service.IdentifierService
	exec      Executor
	validator middleware.TokenValidator
}

// NewHandler creates a new HTTP handler. A nil validator leaves the exec
// endpoint unauthenticated.
func NewHandler(svc service.IdentifierService, exec Executor, validator middleware.TokenValidator) *Handler {
	return &Handler{
		svc:       svc,
		exec:      exec,
		validator: validator,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		api.GET("/ids/:kind", h.Generate)
		api.GET("/ids/:kind/:id", h.Parse)
		api.POST("/exec", middleware.RequireAuth(h.validator), h.Exec)
	}
}

// NewEngine builds a gin engine with logging, recovery and all routes.
func NewEngine(h *Handler, mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw...)
	h.RegisterRoutes(r)
	return r
}

// Health reports liveness and the generator coordinates.
func (h *Handler) Health(c *gin.Context) {
	info := h.svc.Info()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"region_id": info.RegionID,
		"worker_id": info.WorkerID,
	})
}

// Generate returns one identifier, or count of them with ?count=N.
func (h *Handler) Generate(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	kind, err := generator.ParseKind(c.Param("kind"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	count := 1
	if raw := c.Query("count"); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil || count < 1 || count > generator.MaxBatchSize {
			response.BadRequest(c, "count must be an integer between 1 and "+strconv.Itoa(generator.MaxBatchSize))
			return
		}
	}

	var ids []string
	if count == 1 {
		var id string
		id, err = h.svc.Generate(ctx, kind)
		ids = []string{id}
	} else {
		ids, err = h.svc.GenerateBatch(ctx, kind, count)
	}
	if err != nil {
		l.Error().Err(err).Str(log.FieldIDKind, string(kind)).Msg("generate failed")
		h.writeError(c, err)
		return
	}

	response.Success(c, IDsResponse{Kind: kind, IDs: ids})
}

// Parse validates and decodes an identifier.
func (h *Handler) Parse(c *gin.Context) {
	ctx := c.Request.Context()

	kind, err := generator.ParseKind(c.Param("kind"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	id := c.Param("id")

	valid, reason, err := h.svc.Validate(ctx, kind, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := ParseResponse{Kind: kind, ID: id, Valid: valid, Reason: reason}
	if !valid {
		response.Success(c, resp)
		return
	}

	result, err := h.svc.Parse(ctx, kind, id)
	if err != nil {
		resp.Valid = false
		resp.Reason = err.Error()
		response.Success(c, resp)
		return
	}
	resp.Fields = fieldMap(result.Fields())
	response.Success(c, resp)
}

// Exec runs a proxied command.
func (h *Handler) Exec(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req ExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid exec request")
		response.BadRequest(c, err.Error())
		return
	}

	// Audit entries written by the proxy carry the token subject.
	if subject := middleware.GetSubject(c); subject != "" {
		ctx = log.WithStr(ctx, log.FieldSubject, subject)
	}

	reply, err := h.exec.Execute(ctx, req.Args)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldTarget, req.Args[0]).Msg("exec failed")
		h.writeError(c, err)
		return
	}

	response.Success(c, ExecResponse{
		Generated: jsonValue(reply.Generated),
		Result:    jsonValue(reply.Result),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispatch.ErrUsage), errors.Is(err, generator.ErrUnknownKind):
		response.BadRequest(c, err.Error())
	case errors.Is(err, dispatch.ErrUnknownCommand):
		response.NotFound(c, err.Error())
	case errors.Is(err, generator.ErrClockRegression):
		response.ServiceUnavailable(c, err.Error())
	case errors.Is(err, dispatch.ErrTargetFailure):
		response.BadGateway(c, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}

func fieldMap(pairs []any) map[string]any {
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if k, ok := pairs[i].(string); ok {
			m[k] = pairs[i+1]
		}
	}
	return m
}

// jsonValue makes nested error replies readable in JSON. Integers are
// rendered as decimal strings, matching the gRPC front end.
func jsonValue(v any) any {
	switch val := v.(type) {
	case error:
		return val.Error()
	case int64:
		return strconv.FormatInt(val, 10)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonValue(item)
		}
		return out
	default:
		return v
	}
}
