package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const correlationHeader = "X-Correlation-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestTimeMiddleware logs the duration of every request.
func RequestTimeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logrus.Infof("request time: %s %s: %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// CorrelationMiddleware echoes the caller's correlation id, or assigns one.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(correlationHeader, id)
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r)
	})
}

// AuthTokenMiddleware rejects requests without the expected bearer token.
// An empty token disables the check.
func AuthTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accessToken, ok := accessTokenFromHeader(r)
			if !ok || subtle.ConstantTimeCompare([]byte(accessToken), []byte(token)) != 1 {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing or invalid access token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accessTokenFromHeader(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	// remove prefix Bearer
	accessToken, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || accessToken == "" {
		return "", false
	}
	return accessToken, true
}
