package httpmiddleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotency_ReplaysResponse(t *testing.T) {
	store := newMemStore()
	calls := 0
	h := Idempotency(IdempotencyConfig{Store: store, TTL: time.Hour})(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls++
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
		}))

	first := serve(h, "k1", `{"a":1}`)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, `{"echo":{"a":1}}`, first.Body.String())

	second := serve(h, "k1", `{"a":1}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)

	third := serve(h, "k2", `{"a":1}`)
	assert.Equal(t, http.StatusCreated, third.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_Errors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(s *memStore)
		key    string
		body   string
		status int
	}{
		{
			name:   "missing key",
			key:    "",
			status: http.StatusBadRequest,
		},
		{
			name: "different body",
			setup: func(s *memStore) {
				s.data["POST|/orders:k"] = `{"status":201,"requestHash":"other"}`
			},
			key:    "k",
			body:   `{}`,
			status: http.StatusConflict,
		},
		{
			name: "in progress",
			setup: func(s *memStore) {
				s.data["POST|/orders:k"] = `{"status":0,"requestHash":"` + sha(`{}`) + `"}`
			},
			key:    "k",
			body:   `{}`,
			status: http.StatusConflict,
		},
		{
			name:   "store down",
			setup:  func(s *memStore) { s.err = errors.New("connection refused") },
			key:    "k",
			body:   `{}`,
			status: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			if tt.setup != nil {
				tt.setup(store)
			}
			h := Idempotency(IdempotencyConfig{Store: store, TTL: time.Hour})(okHandler())
			w := serve(h, tt.key, tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestIdempotency_ServerErrorReleasesKey(t *testing.T) {
	store := newMemStore()
	fail := true
	h := Idempotency(IdempotencyConfig{Store: store, TTL: time.Hour})(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			if fail {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusCreated)
		}))

	assert.Equal(t, http.StatusInternalServerError, serve(h, "k", `{}`).Code)
	assert.Empty(t, store.data)

	fail = false
	assert.Equal(t, http.StatusCreated, serve(h, "k", `{}`).Code)
}

func TestIdempotency_ClientErrorIsReplayed(t *testing.T) {
	store := newMemStore()
	calls := 0
	h := Idempotency(IdempotencyConfig{Store: store, TTL: time.Hour})(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			calls++
			writeError(w, http.StatusConflict, "insufficient stock")
		}))

	assert.Equal(t, http.StatusConflict, serve(h, "k", `{}`).Code)
	assert.Equal(t, http.StatusConflict, serve(h, "k", `{}`).Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_BodyTooLarge(t *testing.T) {
	store := newMemStore()
	calls := 0
	h := Idempotency(IdempotencyConfig{Store: store, TTL: time.Hour})(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.WriteHeader(http.StatusCreated)
		}))

	w := serve(h, "k", strings.Repeat("x", MaxIdempotentBody+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, calls)
	assert.Empty(t, store.data)

	assert.Equal(t, http.StatusCreated, serve(h, "k", strings.Repeat("x", MaxIdempotentBody)).Code)
}

func TestIdempotency_PanicReleasesKey(t *testing.T) {
	store := newMemStore()
	fail := true
	h := Idempotency(IdempotencyConfig{Store: store, TTL: time.Hour})(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			if fail {
				panic("boom")
			}
			w.WriteHeader(http.StatusCreated)
		}))

	assert.PanicsWithValue(t, "boom", func() { serve(h, "k", `{}`) })
	assert.Empty(t, store.data)

	fail = false
	assert.Equal(t, http.StatusCreated, serve(h, "k", `{}`).Code)
}

func TestIdempotency_NilStoreDisables(t *testing.T) {
	h := Idempotency(IdempotencyConfig{})(okHandler())
	assert.Equal(t, http.StatusOK, serve(h, "", "").Code)
}

// --- Helpers ---

func serve(h http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func sha(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// --- Mock implementations ---

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemStore() *memStore { return &memStore{data: make(map[string]string)} }

func (s *memStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value
	return true, nil
}

func (s *memStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.err
}

func (s *memStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return s.err
}
