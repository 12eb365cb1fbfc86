package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	eventbus "github.com/keywordwei/graphql-loader/internal/eventbus"
	events "github.com/keywordwei/graphql-loader/internal/events"
	source "github.com/keywordwei/graphql-loader/internal/source"
	"github.com/keywordwei/graphql-loader/internal/specialize"
	"github.com/stretchr/testify/require"
)

var files = map[string]string{
	"/gql/alarm-list.gql": `#import "./fragments/meta.gql"
query AlarmList($limit: Int64) {
  alarm_list(limit: $limit) {
    count
    relation_entitys { key { id } meta { ...alarmMeta } }
  }
}
`,
	"/gql/fragments/meta.gql": "fragment alarmMeta on Meta { level rule_name }\n",
	"/dict/alarm-list.js": `module.exports = {
  list: 'alarm_list.relation_entitys',
  dict: {
    total: 'alarm_list.count',
    alarm_list_level: 'alarmMeta.level',
    alarm_list_id: 'alarm_list.relation_entitys.key.id',
  },
};`,
	"/gql/no-dict.gql":    "{ a }",
	"/gql/bad-import.gql": "#import \"./gone.gql\"\n{ a }",
	"/dict/bad-import.js": "module.exports = { list: 'a', dict: {} }",
}

func newTestHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()
	return newTestHandlerWith(t, nil, opts...)
}

func newTestHandlerWith(t *testing.T, svcOpts []specialize.Option, opts ...Option) *Handler {
	t.Helper()
	svc := specialize.NewService(source.NewInMemory(files), source.Layout{Documents: "/gql", Dictionaries: "/dict"}, svcOpts...)
	return New(svc, opts...)
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type result struct {
	Query string         `json:"query"`
	List  string         `json:"list"`
	Dict  map[string]any `json:"dict"`
}

type apiError struct {
	Error struct {
		Code    string   `json:"code"`
		Message string   `json:"message"`
		Fields  []string `json:"fields"`
	} `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSpecializePost(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, http.MethodPost, "/specialize", `{"document":"alarm-list","fields":["alarm_list_level","total"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))

	res := decode[result](t, w)
	require.Equal(t, "alarm_list.relation_entitys", res.List)
	require.Equal(t, map[string]any{
		"alarm_list_level": "alarm_list.relation_entitys.meta.level",
		"total":            "alarm_list.count",
	}, res.Dict)
	require.Contains(t, res.Query, "level")
	require.NotContains(t, res.Query, "rule_name")
	require.NotContains(t, res.Query, "key")

	// Keys come back in the requested order.
	require.Less(t, strings.Index(w.Body.String(), `"alarm_list_level"`), strings.Index(w.Body.String(), `"total"`))
}

func TestSpecializeGet(t *testing.T) {
	h := newTestHandler(t)

	w := do(h, http.MethodGet, "/specialize?document=alarm-list&fields=total,alarm_list_id", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[result](t, w)
	require.Len(t, res.Dict, 2)

	// No fields parameter means no filter.
	w = do(h, http.MethodGet, "/specialize?document=alarm-list", "")
	require.Equal(t, http.StatusOK, w.Code)
	res = decode[result](t, w)
	require.Len(t, res.Dict, 3)

	// Repeated parameters accumulate.
	w = do(h, http.MethodGet, "/specialize?document=alarm-list&fields=total&fields=alarm_list_id", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[result](t, w).Dict, 2)
}

func TestSpecializeUnknownField(t *testing.T) {
	w := do(newTestHandler(t), http.MethodPost, "/specialize", `{"document":"alarm-list","fields":["total","nope"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"nope":null`)

	strict := newTestHandlerWith(t, []specialize.Option{specialize.WithStrictFields(true)})
	w = do(strict, http.MethodPost, "/specialize", `{"document":"alarm-list","fields":["total","nope"]}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	e := decode[apiError](t, w)
	require.Equal(t, "unknown_fields", e.Error.Code)
	require.Equal(t, []string{"nope"}, e.Error.Fields)
}

func TestSpecializeErrors(t *testing.T) {
	h := newTestHandler(t)
	for _, tc := range []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"missing document param", http.MethodGet, "/specialize", "", http.StatusBadRequest, "bad_request"},
		{"missing document field", http.MethodPost, "/specialize", `{"fields":[]}`, http.StatusBadRequest, "bad_request"},
		{"invalid json", http.MethodPost, "/specialize", `{`, http.StatusBadRequest, "bad_request"},
		{"traversal", http.MethodPost, "/specialize", `{"document":"../etc/passwd"}`, http.StatusBadRequest, "invalid_document"},
		{"unknown document", http.MethodPost, "/specialize", `{"document":"nope"}`, http.StatusNotFound, "document_not_found"},
		{"missing dictionary", http.MethodPost, "/specialize", `{"document":"no-dict"}`, http.StatusInternalServerError, "configuration_error"},
		{"missing import", http.MethodPost, "/specialize", `{"document":"bad-import"}`, http.StatusInternalServerError, "configuration_error"},
		{"empty selection", http.MethodPost, "/specialize", `{"document":"alarm-list","fields":[]}`, http.StatusUnprocessableEntity, "empty_selection"},
		{"only undeclared fields", http.MethodPost, "/specialize", `{"document":"alarm-list","fields":["nope"]}`, http.StatusUnprocessableEntity, "empty_selection"},
		{"method", http.MethodDelete, "/specialize", "", http.StatusMethodNotAllowed, "method_not_allowed"},
		{"route", http.MethodGet, "/nope", "", http.StatusNotFound, "not_found"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := do(h, tc.method, tc.target, tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			require.Equal(t, tc.code, decode[apiError](t, w).Error.Code)
		})
	}
}

func TestUnsupportedContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/specialize", strings.NewReader("document=alarm-list"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	newTestHandler(t).ServeHTTP(w, req)
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestMaxBodyBytes(t *testing.T) {
	h := newTestHandler(t, WithMaxBodyBytes(16))
	w := do(h, http.MethodPost, "/specialize", `{"document":"alarm-list","fields":["total"]}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPretty(t *testing.T) {
	w := do(newTestHandler(t, WithPretty()), http.MethodGet, "/documents", "")
	require.True(t, bytes.Contains(w.Body.Bytes(), []byte("\n  ")), w.Body.String())
}

func TestDocuments(t *testing.T) {
	h := newTestHandler(t)
	do(h, http.MethodGet, "/specialize?document=alarm-list", "")

	w := do(h, http.MethodGet, "/documents", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[documentsResponse](t, w)
	require.Equal(t, []string{"alarm-list", "bad-import", "no-dict"}, got.Documents)
	require.Equal(t, []string{"alarm-list"}, got.Cached)

	w = do(h, http.MethodPost, "/documents", `{}`)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	w := do(newTestHandler(t, WithMetrics(metrics)), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusTeapot, w.Code)

	w = do(newTestHandler(t), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	h := newTestHandler(t, WithCORS("https://app.example.com"))

	req := httptest.NewRequest(http.MethodOptions, "/specialize", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
	require.Equal(t, "GET,POST,OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTPEvents(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)

	var starts []events.HTTPStart
	var finishes []events.HTTPFinish
	var cuts []events.SpecializeFinish
	eventbus.On(bus, func(_ context.Context, e events.HTTPStart) { starts = append(starts, e) })
	eventbus.On(bus, func(_ context.Context, e events.HTTPFinish) { finishes = append(finishes, e) })
	eventbus.On(bus, func(_ context.Context, e events.SpecializeFinish) { cuts = append(cuts, e) })

	h := newTestHandler(t)
	do(h, http.MethodPost, "/specialize", `{"document":"nope"}`)
	do(h, http.MethodGet, "/whatever", "")

	require.Len(t, starts, 2)
	require.Equal(t, "/specialize", starts[0].Route)
	require.Equal(t, "other", starts[1].Route)
	require.Len(t, finishes, 2)
	require.Equal(t, http.StatusNotFound, finishes[0].Status)
	require.Equal(t, http.StatusNotFound, finishes[1].Status)
	require.Len(t, cuts, 1)
	require.Error(t, cuts[0].Err)
}
