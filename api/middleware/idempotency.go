package middleware

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/angelmondragon/payvault-backend/api/responses"
	pkgerrors "github.com/angelmondragon/payvault-backend/pkg/errors"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/payvault-backend/pkg/redis"
)

// IdempotencyKeyHeader carries the client-chosen key for unsafe requests.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyBytes = 255

// Idempotency requires an Idempotency-Key on the wrapped route and replays the
// first completed response for repeats of the same key and body. Concurrent
// repeats are rejected while the first is still running. 5xx responses are not
// stored so the caller can retry with the same key.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			switch {
			case key == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(key) > maxIdempotencyKeyBytes:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := requestFingerprint(body)
			scope := r.Method + " " + r.URL.Path

			stored, err := store.Reserve(ctx, scope, key, ttl)
			switch {
			case errors.Is(err, pkgredis.ErrInFlight):
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress"))
				return
			case err != nil:
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency store unavailable"))
				return
			case stored != nil:
				if stored.RequestHash != fingerprint {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				replay(w, stored)
				return
			}

			capture := &responseCapture{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)

			// The handler may have been canceled with the client; settle the key regardless.
			settleCtx := context.WithoutCancel(ctx)
			if capture.status >= http.StatusInternalServerError {
				if err := store.Release(settleCtx, scope, key); err != nil {
					logError(settleCtx, logg, "release idempotency key", err)
				}
				return
			}
			record := pkgredis.IdempotencyRecord{
				Status:      capture.status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: fingerprint,
			}
			if err := store.Complete(settleCtx, scope, key, record, ttl); err != nil {
				logError(settleCtx, logg, "persist idempotency record", err)
			}
		})
	}
}

func requestFingerprint(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func replay(w http.ResponseWriter, record *pkgredis.IdempotencyRecord) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

type responseCapture struct {
	http.ResponseWriter
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func (c *responseCapture) WriteHeader(code int) {
	if c.wroteHeader {
		return
	}
	c.status = code
	c.wroteHeader = true
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
