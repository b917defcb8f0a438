package httpmiddleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/parcel-checkout/pkg/httperr"
)

const (
	// HeaderIdempotencyKey is the client supplied retry key.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplayed marks a response served from the store.
	HeaderIdempotentReplayed = "Idempotent-Replayed"

	maxIdempotencyKey = 255
	defaultMaxBody    = 1 << 20
)

// IdempotencyStore persists idempotency records.
type IdempotencyStore interface {
	Key(scope, id string) string
	// Get returns "" when the key does not exist.
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// IdempotencyConfig configures the Idempotency middleware.
type IdempotencyConfig struct {
	TTL time.Duration
	// Scope partitions keys, typically by authenticated customer. The
	// request method and route are always part of the scope.
	Scope func(*http.Request) string
	// MaxBody caps the buffered request body. Zero means 1 MiB.
	MaxBody int64
}

type idempotencyRecord struct {
	Pending     bool              `json:"pending,omitempty"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency makes requests carrying an Idempotency-Key header safe to
// retry. The first request claims the key with a pending record; its
// response is stored and replayed for later requests with the same key and
// body. A retry while the first request runs gets 409, reusing a key with a
// different body gets 422. Server errors release the key. Requests without
// the header pass through.
func Idempotency(store IdempotencyStore, cfg IdempotencyConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			lg := zctx.From(ctx)
			if len(id) > maxIdempotencyKey {
				httperr.Write(w, http.StatusBadRequest, "The Idempotency-Key header is too long.")
				return
			}

			maxBody := cfg.MaxBody
			if maxBody <= 0 {
				maxBody = defaultMaxBody
			}
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					httperr.Write(w, http.StatusRequestEntityTooLarge, "The request body is too large.")
					return
				}
				httperr.Write(w, http.StatusBadRequest, "The request body could not be read.")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := hashBody(body)

			scope := r.Method + " " + RoutePattern(r)
			if cfg.Scope != nil {
				scope = cfg.Scope(r) + "|" + scope
			}
			key := store.Key(scope, id)

			pending, err := encodeRecord(idempotencyRecord{Pending: true, RequestHash: hash})
			if err != nil {
				lg.Error("Encode idempotency record", zap.Error(err))
				httperr.Write(w, http.StatusInternalServerError, "")
				return
			}
			claimed, err := store.SetNX(ctx, key, pending, cfg.TTL)
			if err != nil {
				lg.Error("Claim idempotency key", zap.Error(err))
				httperr.Write(w, http.StatusServiceUnavailable, "")
				return
			}
			if !claimed {
				replay(ctx, w, store, key, hash)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// Detached from the request: the client may be gone already.
			storeCtx := context.WithoutCancel(ctx)
			if rec.status >= http.StatusInternalServerError {
				if err := store.Del(storeCtx, key); err != nil {
					lg.Warn("Release idempotency key", zap.Error(err))
				}
				return
			}
			record := idempotencyRecord{
				Status:      rec.statusOrOK(),
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				RequestHash: hash,
			}
			if ct := rec.Header().Get("Content-Type"); ct != "" {
				record.Headers = map[string]string{"Content-Type": ct}
			}
			payload, err := encodeRecord(record)
			if err == nil {
				err = store.Set(storeCtx, key, payload, cfg.TTL)
			}
			if err != nil {
				lg.Error("Store idempotent response", zap.String("key", key), zap.Error(err))
			}
		})
	}
}

func replay(ctx context.Context, w http.ResponseWriter, store IdempotencyStore, key, hash string) {
	stored, err := store.Get(ctx, key)
	if err != nil {
		zctx.From(ctx).Error("Load idempotency record", zap.Error(err))
		httperr.Write(w, http.StatusServiceUnavailable, "")
		return
	}
	if stored == "" {
		// Released between SetNX and Get.
		httperr.Write(w, http.StatusConflict, "A request with this Idempotency-Key is being processed.")
		return
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		zctx.From(ctx).Error("Decode idempotency record", zap.Error(err))
		httperr.Write(w, http.StatusInternalServerError, "")
		return
	}
	if record.RequestHash != hash {
		httperr.Write(w, http.StatusUnprocessableEntity, "The Idempotency-Key was used with a different request body.")
		return
	}
	if record.Pending {
		httperr.Write(w, http.StatusConflict, "A request with this Idempotency-Key is being processed.")
		return
	}

	body, err := base64.StdEncoding.DecodeString(record.Body)
	if err != nil {
		zctx.From(ctx).Error("Decode idempotent response", zap.Error(err))
		httperr.Write(w, http.StatusInternalServerError, "")
		return
	}
	for k, v := range record.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set(HeaderIdempotentReplayed, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(body)
}

func encodeRecord(r idempotencyRecord) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
