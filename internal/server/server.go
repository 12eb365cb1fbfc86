// Package server exposes document specialization over HTTP.
//
//	POST /specialize   {"document": "alarm-list", "fields": ["total"]}
//	GET  /specialize?document=alarm-list&fields=total,alarm_list_id
//	GET  /documents
//
// An absent fields value means no filter. The response of /specialize is
// {"query", "list", "dict"}; errors are {"error": {"code", "message"}}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/keywordwei/graphql-loader/internal/config"
	"github.com/keywordwei/graphql-loader/internal/dictionary"
	eventbus "github.com/keywordwei/graphql-loader/internal/eventbus"
	events "github.com/keywordwei/graphql-loader/internal/events"
	"github.com/keywordwei/graphql-loader/internal/prune"
	reqid "github.com/keywordwei/graphql-loader/internal/reqid"
	source "github.com/keywordwei/graphql-loader/internal/source"
	"github.com/keywordwei/graphql-loader/internal/specialize"
)

// RequestIDHeader carries the request id in responses.
const RequestIDHeader = "X-Request-Id"

const (
	routeSpecialize = "/specialize"
	routeDocuments  = "/documents"
	routeMetrics    = "/metrics"
	routeOther      = "other"
)

// Handler is an http.Handler serving the specialization endpoints.
type Handler struct {
	svc *specialize.Service
	opt Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetrics(h http.Handler) Option { return func(o *Options) { o.Metrics = h } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a handler for svc.
func New(svc *specialize.Service, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{svc: svc, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx)
	w.Header().Set(RequestIDHeader, reqid.String(rid))
	route := routeOf(r.URL.Path, h.opt.Metrics != nil)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r, Route: route})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Route: route, Status: status, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	switch route {
	case routeSpecialize:
		status = h.serveSpecialize(ctx, w, r)
	case routeDocuments:
		status = h.serveDocuments(w, r)
	case routeMetrics:
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.opt.Metrics.ServeHTTP(sw, r.WithContext(ctx))
		status = sw.status
	default:
		status = http.StatusNotFound
		h.writeError(w, status, "not_found", "no such route", nil)
	}
}

func routeOf(path string, metrics bool) string {
	switch path {
	case routeSpecialize, routeDocuments:
		return path
	case routeMetrics:
		if metrics {
			return path
		}
	}
	return routeOther
}

// ------------------ /specialize ------------------

// SpecializeRequest is the body of POST /specialize. A nil Fields keeps
// every declared field.
type SpecializeRequest struct {
	Document string   `json:"document"`
	Fields   []string `json:"fields"`
}

func (h *Handler) serveSpecialize(ctx context.Context, w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
		return http.StatusMethodNotAllowed
	}
	req, status, msg := parseRequest(r, h.opt.MaxBodyBytes)
	if msg != "" {
		h.writeError(w, status, "bad_request", msg, nil)
		return status
	}

	res, err := h.svc.Cut(ctx, req.Document, req.Fields)
	if err != nil {
		status, code := h.classify(req.Document, err)
		var fields []string
		var uerr *dictionary.UnknownFieldError
		if errors.As(err, &uerr) {
			fields = uerr.Fields
		}
		h.writeError(w, status, code, err.Error(), fields)
		return status
	}
	writeJSON(w, http.StatusOK, res, h.opt.Pretty)
	return http.StatusOK
}

// classify maps a specialization error to a status and error code. A
// missing document file is the caller's mistake; any other missing file is
// a broken deployment.
func (h *Handler) classify(id string, err error) (int, string) {
	var missing *source.MissingFileError
	var uerr *dictionary.UnknownFieldError
	switch {
	case errors.Is(err, specialize.ErrInvalidDocument):
		return http.StatusBadRequest, "invalid_document"
	case errors.As(err, &missing) && missing.Path == h.svc.Layout().DocumentPath(id):
		return http.StatusNotFound, "document_not_found"
	case errors.As(err, &uerr):
		return http.StatusUnprocessableEntity, "unknown_fields"
	case errors.Is(err, prune.ErrEmptySelection):
		return http.StatusUnprocessableEntity, "empty_selection"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "canceled"
	}
	return http.StatusInternalServerError, "configuration_error"
}

func parseRequest(r *http.Request, maxBody int64) (SpecializeRequest, int, string) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req := SpecializeRequest{Document: q.Get("document")}
		if vals, ok := q["fields"]; ok {
			req.Fields = []string{}
			for _, v := range vals {
				req.Fields = append(req.Fields, config.SplitList(v)...)
			}
		}
		if req.Document == "" {
			return req, http.StatusBadRequest, "missing 'document'"
		}
		return req, 0, ""
	}

	// POST
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return SpecializeRequest{}, http.StatusUnsupportedMediaType, "unsupported Content-Type"
		}
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	defer r.Body.Close()
	if err != nil {
		return SpecializeRequest{}, http.StatusBadRequest, "failed to read body"
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return SpecializeRequest{}, http.StatusRequestEntityTooLarge, "body too large"
	}
	var req SpecializeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return SpecializeRequest{}, http.StatusBadRequest, "invalid JSON"
	}
	if req.Document == "" {
		return req, http.StatusBadRequest, "missing 'document'"
	}
	return req, 0, ""
}

// ------------------ /documents ------------------

type documentsResponse struct {
	Documents []string `json:"documents"`
	Cached    []string `json:"cached"`
}

func (h *Handler) serveDocuments(w http.ResponseWriter, r *http.Request) int {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, OPTIONS")
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
		return http.StatusMethodNotAllowed
	}
	ids, err := h.svc.Documents()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "configuration_error", err.Error(), nil)
		return http.StatusInternalServerError
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, documentsResponse{Documents: ids, Cached: h.svc.Cache().IDs()}, h.opt.Pretty)
	return http.StatusOK
}

// ------------------ Response formatting ------------------

type errorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, fields []string) {
	body := errorBody{Code: code, Message: msg, Fields: fields}
	writeJSON(w, status, errorResponse{Error: body}, h.opt.Pretty)
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
