package httpapi

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

type contextKey int

const requestStateKey contextKey = iota

// requestState is the per-request lifecycle record: the correlation id plus
// the failure slot the error translator fills when it renders a 5xx.
type requestState struct {
	id      string
	failure error
	stack   []byte
}

// RequestID returns the correlation id for the current request, or "" when
// called outside the lifecycle middleware.
func RequestID(ctx context.Context) string {
	if st, ok := ctx.Value(requestStateKey).(*requestState); ok {
		return st.id
	}
	return ""
}

// markFailed records err against the current request so the lifecycle
// middleware emits an error record instead of an access record.
func markFailed(ctx context.Context, err error) {
	if st, ok := ctx.Value(requestStateKey).(*requestState); ok {
		st.failure = err
		st.stack = debug.Stack()
	}
}

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.wrote {
		rec.status = code
		rec.wrote = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.wrote = true
	return rec.ResponseWriter.Write(b)
}

// lifecycle is the request lifecycle middleware. Per request it assigns a
// correlation id (honoring an inbound X-Request-ID), stamps it on the
// response, times the handler, and emits exactly one structured log
// record: an access record on completion, or an error record — with the
// error and a stack capture — when the handler panicked or an unclassified
// failure was rendered as a 5xx. Never both, never zero.
func (a *API) lifecycle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		st := &requestState{id: id}
		ctx := context.WithValue(r.Context(), requestStateKey, st)

		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		func() {
			defer func() {
				if p := recover(); p != nil {
					markFailed(ctx, panicError{p})
					if !rec.wrote {
						writeJSON(rec, http.StatusInternalServerError, errorBody{Detail: internalDetail})
					}
				}
			}()
			next.ServeHTTP(rec, r.WithContext(ctx))
		}()

		durationMS := roundHundredths(time.Since(start))
		clientIP := clientAddr(r)
		userAgent := r.UserAgent()
		if userAgent == "" {
			userAgent = "unknown"
		}

		if st.failure != nil {
			a.logs.Error.Error().
				Str("request_id", id).
				Str("client_ip", clientIP).
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Str("path", r.URL.Path).
				Str("user_agent", userAgent).
				Int("status", rec.status).
				Float64("duration_ms", durationMS).
				Str("error", st.failure.Error()).
				Bytes("stack", st.stack).
				Msg("request failed")
			return
		}

		a.logs.Access.Info().
			Str("request_id", id).
			Str("client_ip", clientIP).
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Str("path", r.URL.Path).
			Str("user_agent", userAgent).
			Int("status", rec.status).
			Float64("duration_ms", durationMS).
			Msg("request completed")
	})
}

type panicError struct{ value any }

func (e panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func roundHundredths(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
	return host
}

// cors is a permissive CORS layer enabled only in debug, matching the
// development posture of the app factory.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
