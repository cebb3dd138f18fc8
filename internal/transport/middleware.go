package transport

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/observability"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/session"
	"github.com/Bob-Light1/school-management-system-frontend-sub000/model"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxCorrelationLen = 128
)

// CorrelationIDFrom returns the id RequestID assigned to the request.
func CorrelationIDFrom(ctx context.Context) string {
	if rc := model.RequestContextFrom(ctx); rc != nil {
		return rc.CorrelationID
	}
	return ""
}

// Recovery turns a handler panic into a logged INTERNAL_ERROR response.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				observability.RequestLogger(r.Context(), logger).Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"),
				)
				WriteError(w, model.NewInternalError())
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type corsPolicy struct {
	origins map[string]struct{}
	methods string
	headers string
	maxAge  string
}

func (p corsPolicy) allow(h http.Header, origin string) {
	if _, ok := p.origins[origin]; !ok {
		return
	}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", p.methods)
	h.Set("Access-Control-Allow-Headers", p.headers)
	h.Set("Access-Control-Max-Age", p.maxAge)
	// The browser reads the correlation id and the export file name.
	h.Set("Access-Control-Expose-Headers", correlationHeader+", Content-Disposition")
	h.Add("Vary", "Origin")
}

// CORS lets the configured browser origins call the console with
// credentials. Preflight requests are answered here and never reach the
// handlers.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	p := corsPolicy{
		origins: make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods: strings.Join(cfg.AllowedMethods, ", "),
		headers: strings.Join(cfg.AllowedHeaders, ", "),
		maxAge:  strconv.Itoa(cfg.MaxAge),
	}
	for _, o := range cfg.AllowedOrigins {
		p.origins[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				p.allow(w.Header(), origin)
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID starts the request's model.RequestContext. The inbound
// X-Correlation-Id is kept when it looks like an id; otherwise a UUID is
// issued. The id is echoed back, added to every observability.RequestLogger
// line, and forwarded by the API client on each backend call.
func RequestID(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(correlationHeader)
			if !validCorrelationID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(correlationHeader, id)

			ctx := model.WithRequestContext(r.Context(), &model.RequestContext{CorrelationID: id})
			ctx = observability.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Cache-Control", "no-store"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, kv := range securityHeaders {
			w.Header().Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSession guards the page routes. A pending navigator redirect
// (the session expired) wins over everything and is answered until the
// next login; no stored token sends the browser to loginRoute. Otherwise
// the request context is bound to the token subject, the page and scope.
func RequireSession(sess *session.Session, nav *session.RecordingNavigator, loginRoute string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if loc := nav.Pending(); loc != "" {
				WriteRedirect(w, model.NewSessionExpiredError(), loc)
				return
			}

			ctx := r.Context()
			token, err := sess.Token(ctx)
			if err != nil {
				WriteError(w, err)
				return
			}
			if token == "" {
				WriteRedirect(w, model.NewUnauthorizedError("Not signed in"), loginRoute)
				return
			}

			rc := model.RequestContextFrom(ctx).WithPage(chi.URLParam(r, "pageId"), r.URL.Query().Get("scope"))
			rc.TraceID = observability.TraceIDFromContext(ctx)
			if claims, err := sess.Claims(ctx); err == nil {
				rc.SubjectID = claims.Subject
			}
			next.ServeHTTP(w, r.WithContext(model.WithRequestContext(ctx, rc)))
		})
	}
}

// HandlerTimeout bounds every request, backend calls included. Zero
// disables it.
func HandlerTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogging writes one access line per request: error for 5xx, warn
// for 4xx, info otherwise. Probe endpoints log at debug.
func RequestLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			l := observability.RequestLogger(r.Context(), logger)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case status >= 500:
				l.Error("request", fields...)
			case status >= 400:
				l.Warn("request", fields...)
			case isProbe(r.URL.Path):
				l.Debug("request", fields...)
			default:
				l.Info("request", fields...)
			}
		})
	}
}

func isProbe(path string) bool {
	return path == "/ui/health" || path == "/ui/ready" || path == "/metrics"
}
