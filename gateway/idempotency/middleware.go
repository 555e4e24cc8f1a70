package idempotency

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
	maxBodyBytes = 1 << 20
)

// CallerFunc names the principal idempotency keys are scoped to.
type CallerFunc func(r *http.Request) string

// Guard replays cached responses for write requests carrying an
// Idempotency-Key header.
type Guard struct {
	store    *Store
	callerFn CallerFunc
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewGuard(store *Store, callerFn CallerFunc, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if callerFn == nil {
		callerFn = func(*http.Request) string { return "" }
	}
	return &Guard{
		store:    store,
		callerFn: callerFn,
		logger:   logger.With(slog.String("component", "idempotency")),
		inflight: make(map[string]struct{}),
	}
}

func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderKey))
		if g == nil || g.store == nil || key == "" || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxKeyLength {
			writeError(w, http.StatusBadRequest, "idempotency key too long")
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unable to read request body")
			return
		}
		if len(body) > maxBodyBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		caller := g.callerFn(r)
		requestHash := HashRequest(r.Method, r.URL.Path, body)
		cached, err := g.store.Lookup(r.Context(), caller, key, requestHash)
		switch {
		case errors.Is(err, ErrMismatch):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			g.logger.Error("idempotency lookup failed", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "idempotency store unavailable")
			return
		case cached != nil:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(HeaderReplayed, "true")
			w.WriteHeader(cached.Status)
			_, _ = w.Write(cached.Body)
			return
		}

		slot := caller + "|" + key
		if !g.acquire(slot) {
			writeError(w, http.StatusConflict, "request with this idempotency key is in progress")
			return
		}
		defer g.release(slot)

		capture := &responseCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(capture, r)
		if capture.status >= http.StatusInternalServerError {
			return
		}
		if err := g.store.Save(r.Context(), caller, key, requestHash, Response{Status: capture.status, Body: capture.body.Bytes()}); err != nil {
			g.logger.Error("idempotency save failed", slog.Any("error", err))
		}
	})
}

func (g *Guard) acquire(slot string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[slot]; busy {
		return false
	}
	g.inflight[slot] = struct{}{}
	return true
}

func (g *Guard) release(slot string) {
	g.mu.Lock()
	delete(g.inflight, slot)
	g.mu.Unlock()
}

type responseCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
