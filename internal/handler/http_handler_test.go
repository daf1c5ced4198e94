package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/dispatch"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/generator"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/proxy"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/service"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-live/uniqueid/pkg/log"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/middleware"
)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(t *testing.T, validator middleware.TokenValidator) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { rdb.Close() })

	sf, err := generator.NewSnowflakeGenerator(generator.SnowflakeConfig{RegionID: 2, WorkerID: 4})
	require.NoError(t, err)
	nano, err := generator.NewNanoIDGenerator(generator.DefaultNanoIDSize, generator.DefaultNanoIDAlphabet)
	require.NoError(t, err)
	svc, err := service.NewIdentifierService(sf, nano)
	require.NoError(t, err)

	router := dispatch.NewRouter(dispatch.NewRedisBackendFromClient(rdb))
	service.RegisterCommands(router, svc)
	px := proxy.New(router)
	px.Register(router)

	return NewEngine(NewHandler(svc, px, validator)), mr
}

func do(t *testing.T, r http.Handler, method, path string, body any, header http.Header) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestHealth(t *testing.T) {
	r, _ := newTestEngine(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","region_id":2,"worker_id":4}`, w.Body.String())
}

func TestGenerate(t *testing.T) {
	r, _ := newTestEngine(t, nil)

	w, env := do(t, r, http.MethodGet, "/api/v1/ids/snowflake", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ids IDsResponse
	require.NoError(t, json.Unmarshal(env.Data, &ids))
	require.Len(t, ids.IDs, 1)
	_, err := strconv.ParseInt(ids.IDs[0], 10, 64)
	assert.NoError(t, err)

	w, env = do(t, r, http.MethodGet, "/api/v1/ids/nanoid?count=3", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &ids))
	assert.Equal(t, generator.KindNanoID, ids.Kind)
	assert.Len(t, ids.IDs, 3)

	w, env = do(t, r, http.MethodGet, "/api/v1/ids/uuidv4?count=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/ids/bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/ids/cuid2", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "cuid2 is not registered")
}

func TestParse(t *testing.T) {
	r, _ := newTestEngine(t, nil)

	_, env := do(t, r, http.MethodGet, "/api/v1/ids/snowflake", nil, nil)
	var ids IDsResponse
	require.NoError(t, json.Unmarshal(env.Data, &ids))

	w, env := do(t, r, http.MethodGet, "/api/v1/ids/snowflake/"+ids.IDs[0], nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var parsed ParseResponse
	require.NoError(t, json.Unmarshal(env.Data, &parsed))
	assert.True(t, parsed.Valid)
	assert.EqualValues(t, 2, parsed.Fields["region_id"])
	assert.EqualValues(t, 4, parsed.Fields["worker_id"])

	w, env = do(t, r, http.MethodGet, "/api/v1/ids/snowflake/abc", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &parsed))
	assert.False(t, parsed.Valid)
	assert.NotEmpty(t, parsed.Reason)
}

func TestExec(t *testing.T) {
	r, mr := newTestEngine(t, nil)

	w, env := do(t, r, http.MethodPost, "/api/v1/exec", ExecRequest{Args: []string{"SET", proxy.TokenSnowflake, "v"}}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Integers above 2^53 would lose precision as JSON numbers.
	var resp struct {
		Generated string `json:"generated"`
		Result    string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "OK", resp.Result)
	_, err := strconv.ParseInt(resp.Generated, 10, 64)
	require.NoError(t, err)
	mr.CheckGet(t, resp.Generated, "v")

	require.NoError(t, mr.Set("counter", "9007199254740993"))
	w, env = do(t, r, http.MethodPost, "/api/v1/exec", ExecRequest{Args: []string{"INCR", "counter"}}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp.Generated, resp.Result = "", ""
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Empty(t, resp.Generated)
	assert.Equal(t, "9007199254740994", resp.Result)

	require.NoError(t, mr.Set("plain", "v"))
	w, env = do(t, r, http.MethodPost, "/api/v1/exec", ExecRequest{Args: []string{"LPUSH", "plain", proxy.TokenUUIDv4}}, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, env.Error.Message, "WRONGTYPE")

	w, _ = do(t, r, http.MethodPost, "/api/v1/exec", map[string]any{"args": []string{}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExec_RequiresToken(t *testing.T) {
	mgr, err := jwt.NewManager([]byte("test-secret"), "uniqueid", time.Hour)
	require.NoError(t, err)
	r, _ := newTestEngine(t, mgr)

	body := ExecRequest{Args: []string{"GET", "k"}}

	w, env := do(t, r, http.MethodPost, "/api/v1/exec", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	token, err := mgr.GenerateToken("svc-a", nil)
	require.NoError(t, err)
	w, _ = do(t, r, http.MethodPost, "/api/v1/exec", body, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, w.Code)

	// Identifier reads stay public.
	w, _ = do(t, r, http.MethodGet, "/api/v1/ids/uuidv1", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEnvelopeCarriesRequestID(t *testing.T) {
	sf, err := generator.NewSnowflakeGenerator(generator.SnowflakeConfig{RegionID: 1, WorkerID: 1})
	require.NoError(t, err)
	svc, err := service.NewIdentifierService(sf)
	require.NoError(t, err)
	router := dispatch.NewRouter(nil)
	service.RegisterCommands(router, svc)

	r := NewEngine(NewHandler(svc, proxy.New(router), nil), pkglog.GinMiddleware(zerolog.Nop()))

	w, env := do(t, r, http.MethodGet, "/api/v1/ids/uuidv4", nil, http.Header{"X-Request-Id": {"req-42"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", env.RequestID)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w, env = do(t, r, http.MethodGet, "/api/v1/ids/nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, w.Header().Get("X-Request-ID"), env.RequestID)
}
