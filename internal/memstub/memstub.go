// Package memstub is a local stand-in for the hosted memory API. It speaks
// the same wire format (POST /memory, GET /memory, GET /memory/search) and
// keeps records in a private in-memory SQLite database, ranking searches by
// token overlap. Tests use it for deterministic round trips and failure
// injection; the mem0stub command serves it for local development.
package memstub

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Options configures a Backend.
type Options struct {
	// APIKey, when set, must be presented as "Authorization: Bearer <key>".
	APIKey string

	// Dimensions of the token-hash embedding. Defaults to DefaultDimensions.
	Dimensions int

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Request is a request as the Backend received it.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireAddRequest struct {
	UserID   string                 `json:"user_id"`
	Category string                 `json:"category"`
	Messages []wireMessage          `json:"messages"`
	Metadata map[string]interface{} `json:"metadata"`
}

type wireAddEvent struct {
	ID     string `json:"id"`
	Memory string `json:"memory"`
	Event  string `json:"event"`
}

type injectedFailure struct {
	status int
	body   string
}

// Backend is an http.Handler implementing the memory API.
type Backend struct {
	store  *store
	apiKey string
	logger *slog.Logger
	now    func() time.Time
	mux    *http.ServeMux

	mu       sync.Mutex
	failures []injectedFailure
	requests []Request
}

// New creates a Backend with an empty database.
func New(opts Options) (*Backend, error) {
	st, err := openStore(NewEmbedder(opts.Dimensions))
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	b := &Backend{
		store:  st,
		apiKey: opts.APIKey,
		logger: logger.With("component", "memstub"),
		now:    now,
		mux:    http.NewServeMux(),
	}
	b.mux.HandleFunc("POST /memory", b.handleAdd)
	b.mux.HandleFunc("GET /memory", b.handleList)
	b.mux.HandleFunc("GET /memory/search", b.handleSearch)
	return b, nil
}

// Close releases the database.
func (b *Backend) Close() error {
	return b.store.close()
}

// FailNext makes the next n requests answer with status and an error body
// before any other processing.
func (b *Backend) FailNext(status, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		b.failures = append(b.failures, injectedFailure{
			status: status,
			body:   http.StatusText(status),
		})
	}
}

// Requests returns a copy of every request received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// CallCount returns how many requests have been received.
func (b *Backend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// Len returns how many records are stored.
func (b *Backend) Len() (int, error) {
	return b.store.count()
}

// ServeHTTP records the request, applies authentication and injected
// failures, then routes it.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		handleBadRequest(w, "unreadable body")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	b.mu.Lock()
	b.requests = append(b.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	var failure *injectedFailure
	if len(b.failures) > 0 {
		f := b.failures[0]
		b.failures = b.failures[1:]
		failure = &f
	}
	b.mu.Unlock()

	b.logger.Debug("Request", "method", r.Method, "path", r.URL.Path)

	if failure != nil {
		writeErrorResponse(w, failure.status, ErrorCodeInjected, failure.body)
		return
	}

	if b.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+b.apiKey {
		handleUnauthorized(w)
		return
	}

	b.mux.ServeHTTP(w, r)
}

func (b *Backend) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req wireAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleBadRequest(w, "body must be a JSON object")
		return
	}
	if req.UserID == "" {
		handleBadRequest(w, "user_id is required")
		return
	}

	parts := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	if len(parts) == 0 {
		handleBadRequest(w, "messages must contain content")
		return
	}

	rec, err := b.store.insert(uuid.NewString(), req.UserID, categoryOrDefault(req.Category),
		strings.Join(parts, "\n"), req.Metadata, b.now())
	if err != nil {
		handleInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": []wireAddEvent{{ID: rec.ID, Memory: rec.Memory, Event: "ADD"}},
	})
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		handleBadRequest(w, "user_id is required")
		return
	}
	limit, ok := intParam(w, q, "limit", 50)
	if !ok {
		return
	}
	offset, ok := intParam(w, q, "offset", 0)
	if !ok {
		return
	}

	records, err := b.store.list(userID, categoryOrDefault(q.Get("category")), limit, offset)
	if err != nil {
		handleInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": records})
}

func (b *Backend) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	if strings.TrimSpace(query) == "" {
		handleBadRequest(w, "query is required")
		return
	}
	userID := q.Get("user_id")
	if userID == "" {
		handleBadRequest(w, "user_id is required")
		return
	}
	limit, ok := intParam(w, q, "limit", 3)
	if !ok {
		return
	}

	records, err := b.store.search(query, userID, categoryOrDefault(q.Get("category")), limit)
	if err != nil {
		handleInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": records})
}

func categoryOrDefault(c string) string {
	if c == "" {
		return "memory"
	}
	return c
}

func intParam(w http.ResponseWriter, q url.Values, name string, def int) (int, bool) {
	raw := q.Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		handleBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}
