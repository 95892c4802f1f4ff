package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/battlezone/internal/backend"
)

type ctxKey int

const authKey ctxKey = iota

func authFrom(ctx context.Context) backend.AuthSession {
	as, _ := ctx.Value(authKey).(backend.AuthSession)
	return as
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Authenticate resolves the bearer token into an auth session.
func Authenticate(auth backend.Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			as, err := auth.Current(r.Context(), bearer(r))
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authKey, as)))
		})
	}
}

// RequireAdmin lets a request through only when the caller's profile carries
// the admin flag. It runs after Authenticate.
func RequireAdmin(tables backend.Tables) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := tables.GetProfile(r.Context(), authFrom(r.Context()).UserID)
			if err != nil || !p.IsAdmin {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "access denied"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
