package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitwebs/bitstream/internal/engine"
	"github.com/bitwebs/bitstream/internal/kv"
	"github.com/bitwebs/bitstream/internal/model"
	"github.com/bitwebs/bitstream/internal/testutil"
)

type testServer struct {
	t      *testing.T
	eng    *engine.Engine
	kv     *kv.Map
	router *gin.Engine
}

func newTestServer(t *testing.T, local model.WriterID, writers ...model.WriterID) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := testutil.OpenStore(t)

	logs := make([]engine.WriterLog, len(writers))
	for i, w := range writers {
		logs[i] = s.WriterLog(w)
	}
	eng, err := engine.New(logs...)
	require.NoError(t, err)

	m := kv.New(eng, s.Index("kv"), kv.WithLocal(local))
	return &testServer{t: t, eng: eng, kv: m, router: NewRouter(NewAPI(eng, m))}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) update() {
	ts.t.Helper()
	_, err := ts.kv.Update(ts.t.Context())
	require.NoError(ts.t, err)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestPutThenGet(t *testing.T) {
	ts := newTestServer(t, "A", "A")

	w := ts.do(http.MethodPut, "/kv/color", PutRequest{Value: "red"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "A", body["writer"])
	assert.EqualValues(t, 0, body["seq"])

	w = ts.do(http.MethodGet, "/kv/color", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "not visible before update")

	ts.update()

	w = ts.do(http.MethodGet, "/kv/color", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "red", body["value"])
	prov := body["provenance"].(map[string]any)
	assert.Equal(t, "41", prov["changeId"])
	assert.EqualValues(t, 0, prov["seq"])
}

func TestPut_MissingValue(t *testing.T) {
	ts := newTestServer(t, "A", "A")

	w := ts.do(http.MethodPut, "/kv/color", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPut_ReservedKey(t *testing.T) {
	ts := newTestServer(t, "A", "A")

	w := ts.do(http.MethodPut, "/kv/_conflict%2Fcolor", PutRequest{Value: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "RESERVED_KEY")

	w = ts.do(http.MethodGet, "/kv/_conflict%2Fcolor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConflictEndpoints(t *testing.T) {
	ts := newTestServer(t, "A", "A", "B")

	w := ts.do(http.MethodPut, "/kv/k", PutRequest{Value: "a", Isolated: true})
	require.Equal(t, http.StatusAccepted, w.Code)

	p, err := model.EncodeOp(model.Op{Type: model.OpPut, Key: []byte("k"), Value: []byte("b")})
	require.NoError(t, err)
	w = ts.do(http.MethodPost, "/writers/B/append", AppendRequest{Payloads: []string{string(p)}, Isolated: true})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, []any{"B:0"}, decode(t, w)["entries"])

	ts.update()

	// Equal lengths: A ranks before B in canonical order, so A's put is
	// applied last and B's concurrent value is shadowed.
	w = ts.do(http.MethodGet, "/kv/k", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a", decode(t, w)["value"])

	w = ts.do(http.MethodGet, "/kv/k/conflict", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b", decode(t, w)["value"])

	w = ts.do(http.MethodGet, "/conflicts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	conflicts := decode(t, w)["conflicts"].([]any)
	require.Len(t, conflicts, 1)
	first := conflicts[0].(map[string]any)
	assert.Equal(t, "k", first["key"])
	assert.Equal(t, "a", first["current"].(map[string]any)["value"])
	assert.Equal(t, "b", first["shadowed"].(map[string]any)["value"])

	w = ts.do(http.MethodGet, "/kv/other/conflict", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrder(t *testing.T) {
	ts := newTestServer(t, "A", "A", "B")

	w := ts.do(http.MethodPost, "/writers/A/append", AppendRequest{Payloads: []string{"a0", "a1"}})
	require.Equal(t, http.StatusAccepted, w.Code)
	w = ts.do(http.MethodPost, "/writers/B/append", AppendRequest{Payloads: []string{"b0"}})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = ts.do(http.MethodGet, "/order", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, []any{"B:0", "A:1", "A:0"}, body["order"])
	assert.Equal(t, []any{"B", "A"}, body["ranking"])
	assert.NotEmpty(t, body["hash"])
}

func TestAppend_Errors(t *testing.T) {
	ts := newTestServer(t, "A", "A")

	w := ts.do(http.MethodPost, "/writers/Z/append", AppendRequest{Payloads: []string{"x"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPost, "/writers/A/append", AppendRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"reserved", engine.NewReservedKeyError([]byte("_conflict/x")), http.StatusBadRequest},
		{"unknown writer", engine.NewUnknownWriterError("Z"), http.StatusNotFound},
		{"stale", engine.NewStaleClockError("A", 2, nil), http.StatusConflict},
		{"reentrancy", engine.NewReentrancyError("kv"), http.StatusConflict},
		{"storage", engine.NewStorageError("read", assert.AnError), http.StatusInternalServerError},
		{"plain", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}
