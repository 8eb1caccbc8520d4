package api

import (
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/gorilla/mux"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	infraidentity "github.com/felixgeelhaar/mutaflow/infrastructure/identity"
	"github.com/felixgeelhaar/mutaflow/infrastructure/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// requestLogger logs one line per request. Client errors are logged at WARN,
// server errors at ERROR.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		var ev *logging.LogEvent
		switch {
		case rec.status >= 500:
			ev = logging.Error()
		case rec.status >= 400:
			ev = logging.Warn()
		default:
			ev = logging.Info()
		}
		ev = ev.Add(logging.Component("api")).
			Add(logging.Str("method", r.Method)).
			Add(logging.Str("path", r.URL.Path)).
			Add(logging.Count("status", rec.status)).
			Add(logging.Count("bytes", rec.bytes)).
			Add(logging.Duration(time.Since(start)))
		if actor, ok := identity.FromContext(r.Context()); ok {
			ev = ev.Add(logging.Actor(actor))
		}
		ev.Msg("http request")
	})
}

// authenticate resolves the caller when a credential is present. Requests
// without one pass through anonymously; requireActor guards the routes that
// need a caller.
func authenticate(provider identity.Provider, credential infraidentity.CredentialFunc) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := credential(r)
			if cred == "" {
				next.ServeHTTP(w, r)
				return
			}
			actor, err := provider.Authenticate(r.Context(), cred)
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), actor)))
		})
	}
}

func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identity.FromContext(r.Context()); !ok {
			writeError(w, r, identity.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit throttles each actor, or each client address for anonymous calls.
func rateLimit(limiter ratelimit.RateLimiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			if !limiter.Allow(r.Context(), key) {
				logging.Warn().
					Add(logging.Component("api")).
					Add(logging.Str("key", key)).
					Add(logging.Str("path", r.URL.Path)).
					Msg("rate limit exceeded")
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, ErrorBody{Error: ErrorDetail{
					Code:    "rate_limited",
					Message: "too many requests",
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if actor, ok := identity.FromContext(r.Context()); ok {
		return "actor:" + actor.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
