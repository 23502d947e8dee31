package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recordstore/logging"
	"recordstore/recordstore"
	"recordstore/utils"
)

const (
	contentTypeHeader = "Content-Type"
	jsonContentType   = "application/json"
)

type testServer struct {
	handler http.Handler
	manager *recordstore.Manager
	logger  *logging.MockLogger
}

func newTestServer(t *testing.T, connect bool) *testServer {
	t.Helper()
	logger := logging.NewMockLogger()
	mgr, err := recordstore.NewManager("bolt://"+filepath.Join(t.TempDir(), "api.db"), recordstore.Options{}, logger)
	require.NoError(t, err)
	if connect {
		require.NoError(t, mgr.Connect(context.Background()))
		t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	}
	return &testServer{
		handler: NewHandler(logger, mgr).Routes(),
		manager: mgr,
		logger:  logger,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(contentTypeHeader, jsonContentType)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

type recordEnvelope struct {
	Message string             `json:"message"`
	Data    recordstore.Record `json:"data"`
}

type listEnvelope struct {
	Message string               `json:"message"`
	Data    []recordstore.Record `json:"data"`
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, sonic.Unmarshal(rr.Body.Bytes(), out), rr.Body.String())
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, true)
	rr := s.do(t, http.MethodGet, HealthPath, "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, jsonContentType, rr.Header().Get(contentTypeHeader))

	var health HealthResponse
	decodeBody(t, rr, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "bolt", health.Store)
	assert.Equal(t, Version, health.Version)
}

func TestHealthCheckDisconnected(t *testing.T) {
	s := newTestServer(t, false)
	rr := s.do(t, http.MethodGet, HealthPath, "")

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var health HealthResponse
	decodeBody(t, rr, &health)
	assert.Equal(t, "unhealthy", health.Status)
	assert.Contains(t, health.Error, "not connected")
}

func TestRecordLifecycle(t *testing.T) {
	s := newTestServer(t, true)

	rr := s.do(t, http.MethodPost, RecordsPath, `{"ID":"u1","data":10}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created recordEnvelope
	decodeBody(t, rr, &created)
	assert.Equal(t, MsgRecordWritten, created.Message)
	assert.Equal(t, recordstore.Record{ID: "u1", Data: 10}, created.Data)

	rr = s.do(t, http.MethodPut, RecordsPath+"/u1", `{"data":15}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodPatch, RecordsPath+"/u1", `{"ID":"u1","data":20}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = s.do(t, http.MethodGet, RecordsPath+"/u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got recordEnvelope
	decodeBody(t, rr, &got)
	assert.Equal(t, recordstore.Record{ID: "u1", Data: 20}, got.Data)

	rr = s.do(t, http.MethodDelete, RecordsPath+"/u1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodGet, RecordsPath+"/u1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// deleting again still succeeds
	rr = s.do(t, http.MethodDelete, RecordsPath+"/u1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRecordIDsNeedingEscapes(t *testing.T) {
	s := newTestServer(t, true)

	for _, id := range []string{"a/b", "50%", "a/b%2Fc", "x y?z#", "ünï/cødé"} {
		t.Run(id, func(t *testing.T) {
			body, err := sonic.Marshal(map[string]interface{}{"ID": id, "data": 1})
			require.NoError(t, err)
			rr := s.do(t, http.MethodPost, RecordsPath, string(body))
			require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

			path := RecordsPath + "/" + url.PathEscape(id)

			rr = s.do(t, http.MethodGet, path, "")
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			var got recordEnvelope
			decodeBody(t, rr, &got)
			assert.Equal(t, recordstore.Record{ID: id, Data: 1}, got.Data)

			body, err = sonic.Marshal(map[string]interface{}{"ID": id, "data": 2})
			require.NoError(t, err)
			rr = s.do(t, http.MethodPut, path, string(body))
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			rr = s.do(t, http.MethodPatch, path, `{"data":3}`)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			rec, err := s.manager.Store().Read(context.Background(), id)
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, float64(3), rec.Data)

			rr = s.do(t, http.MethodDelete, path, "")
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			rec, err = s.manager.Store().Read(context.Background(), id)
			require.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestPathIDRejectsBadEscape(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, RecordsPath+"/a%2Fb", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "a%zz")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	_, err := pathID(req)
	assert.Error(t, err)
}

func TestListAndDeleteAll(t *testing.T) {
	s := newTestServer(t, true)

	rr := s.do(t, http.MethodGet, RecordsPath, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"data":[]`, "empty list is an array, not null")

	for _, id := range []string{"a", "b", "c"} {
		rr = s.do(t, http.MethodPut, RecordsPath+"/"+id, `{"data":1.5}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr = s.do(t, http.MethodGet, RecordsPath, "")
	var list listEnvelope
	decodeBody(t, rr, &list)
	assert.Len(t, list.Data, 3)

	rr = s.do(t, http.MethodGet, StatsPath, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"records":3`)

	rr = s.do(t, http.MethodDelete, RecordsPath, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"deletedCount":3`)

	rr = s.do(t, http.MethodGet, RecordsPath, "")
	decodeBody(t, rr, &list)
	assert.Empty(t, list.Data)
}

func TestRejectsBadPayloads(t *testing.T) {
	s := newTestServer(t, true)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		detail string
	}{
		{"numeric id", http.MethodPost, RecordsPath, `{"ID":42,"data":1}`, `"ID" must be a string`},
		{"null id", http.MethodPost, RecordsPath, `{"ID":null,"data":1}`, `"ID" must be a string`},
		{"missing id", http.MethodPost, RecordsPath, `{"data":1}`, `"ID" is required`},
		{"string data", http.MethodPut, RecordsPath + "/u1", `{"data":"ten"}`, `"data" must be a number`},
		{"missing data", http.MethodPatch, RecordsPath + "/u1", `{}`, `"data" is required`},
		{"id mismatch", http.MethodPut, RecordsPath + "/u1", `{"ID":"u2","data":1}`, "does not match"},
		{"malformed", http.MethodPost, RecordsPath, `{"ID":`, "malformed JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)

			var resp ErrorResponse
			decodeBody(t, rr, &resp)
			assert.Equal(t, ErrInvalidRequestBody, resp.Error)
			assert.Contains(t, resp.Details, tt.detail)
		})
	}

	rr := s.do(t, http.MethodGet, RecordsPath, "")
	assert.Contains(t, rr.Body.String(), `"data":[]`, "rejected payloads write nothing")
}

func TestEmptyIDInBodyIsInvalidArgument(t *testing.T) {
	s := newTestServer(t, true)
	rr := s.do(t, http.MethodPost, RecordsPath, `{"ID":"","data":1}`)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var resp ErrorResponse
	decodeBody(t, rr, &resp)
	assert.Equal(t, ErrInvalidRecordFields, resp.Error)
}

func TestNotConnectedIsServiceUnavailable(t *testing.T) {
	s := newTestServer(t, false)

	for _, req := range []struct{ method, path, body string }{
		{http.MethodGet, RecordsPath, ""},
		{http.MethodGet, RecordsPath + "/u1", ""},
		{http.MethodPut, RecordsPath + "/u1", `{"data":1}`},
		{http.MethodDelete, RecordsPath, ""},
	} {
		rr := s.do(t, req.method, req.path, req.body)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "%s %s", req.method, req.path)
	}
	assert.NotEmpty(t, s.logger.EntriesAt(logging.WarnLevel))
}

func TestTraceIDPropagation(t *testing.T) {
	s := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodGet, RecordsPath, nil)
	req.Header.Set(utils.TraceIDHeader, "trace-abc")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	assert.Equal(t, "trace-abc", rr.Header().Get(utils.TraceIDHeader))

	found := false
	for _, e := range s.logger.EntriesAt(logging.InfoLevel) {
		if e.Message == "Request completed" && e.Fields["traceId"] == "trace-abc" {
			found = true
		}
	}
	assert.True(t, found, "request log carries the trace id")

	rr = s.do(t, http.MethodGet, RecordsPath, "")
	assert.Len(t, rr.Header().Get(utils.TraceIDHeader), 32, "generated when absent")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, true)
	rr := s.do(t, http.MethodOptions, RecordsPath+"/u1", "")

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestRecovererReturns500(t *testing.T) {
	logger := logging.NewMockLogger()
	h := recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.True(t, logger.HasMessage("Handler panicked"))
}

func TestParseRecordPayload(t *testing.T) {
	p, err := parseRecordPayload([]byte(`{"ID":"u1","data":-3.25}`))
	require.NoError(t, err)
	assert.Equal(t, recordPayload{id: "u1", hasID: true, data: -3.25}, p)

	_, err = parseRecordPayload([]byte(`null`))
	assert.ErrorIs(t, err, errMissingData)

	_, err = parseRecordPayload([]byte(`{"ID":["u1"],"data":1}`))
	assert.ErrorContains(t, err, `"ID" must be a string`)
}
