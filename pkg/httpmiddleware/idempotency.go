package httpmiddleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// IdempotencyHeader carries the client's key for a retried request.
const IdempotencyHeader = "Idempotency-Key"

// MaxIdempotentBody bounds the request body buffered for hashing.
const MaxIdempotentBody = 1 << 20

// IdempotencyStore keeps idempotency records.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	IdempotencyKey(scope, id string) string
}

// IdempotencyConfig configures Idempotency.
type IdempotencyConfig struct {
	Store IdempotencyStore
	// TTL is how long a completed response is replayed.
	TTL time.Duration
	// Scope separates keys of different callers. It defaults to the method
	// and path; callers that know the principal should include it.
	Scope func(*http.Request) string
}

// idempotencyRecord is stored under a key. A zero Status marks a request
// that is still running.
type idempotencyRecord struct {
	Status      int    `json:"status"`
	Body        []byte `json:"body,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	RequestHash string `json:"requestHash"`
}

// Idempotency makes a handler safe to retry. The first request with a key
// reserves it; its response is stored and replayed for retries carrying the
// same body. Retries while the first is running, or with a different body,
// get 409. Server errors release the key so the client can try again.
func Idempotency(cfg IdempotencyConfig) Middleware {
	if cfg.Scope == nil {
		cfg.Scope = func(r *http.Request) string { return r.Method + "|" + r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		if cfg.Store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			lg := zctx.From(ctx)

			id := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if id == "" {
				writeError(w, http.StatusBadRequest, IdempotencyHeader+" header is required")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxIdempotentBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				writeError(w, http.StatusBadRequest, "cannot read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			key := cfg.Store.IdempotencyKey(cfg.Scope(r), id)

			pending, _ := json.Marshal(idempotencyRecord{RequestHash: hash})
			reserved, err := cfg.Store.SetNX(ctx, key, string(pending), cfg.TTL)
			if err != nil {
				lg.Error("Idempotency store unavailable", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
				return
			}
			if !reserved {
				replay(ctx, w, cfg.Store, key, hash)
				return
			}

			// Detach from the request so a disconnecting client does not
			// leave the key reserved.
			storeCtx := context.WithoutCancel(ctx)
			release := func() {
				if err := cfg.Store.Del(storeCtx, key); err != nil {
					lg.Error("Release idempotency key", zap.Error(err))
				}
			}
			defer func() {
				if p := recover(); p != nil {
					release()
					panic(p)
				}
			}()

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.statusCode()
			if status >= http.StatusInternalServerError {
				release()
				return
			}
			done, _ := json.Marshal(idempotencyRecord{
				Status:      status,
				Body:        rec.body.Bytes(),
				ContentType: rec.Header().Get("Content-Type"),
				RequestHash: hash,
			})
			if err := cfg.Store.Set(storeCtx, key, string(done), cfg.TTL); err != nil {
				lg.Error("Persist idempotency record", zap.Error(err))
			}
		})
	}
}

func replay(ctx context.Context, w http.ResponseWriter, store IdempotencyStore, key, hash string) {
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		zctx.From(ctx).Error("Idempotency store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		return
	}
	if !found {
		// Released between SetNX and Get: the first attempt failed.
		writeError(w, http.StatusConflict, "a request with this idempotency key just failed, retry")
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		zctx.From(ctx).Error("Decode idempotency record", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	switch {
	case record.RequestHash != hash:
		writeError(w, http.StatusConflict, "idempotency key reused with a different request body")
	case record.Status == 0:
		writeError(w, http.StatusConflict, "a request with this idempotency key is in progress")
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
