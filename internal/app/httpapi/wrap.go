package httpapi

import (
	"net/http"
	"strings"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// wrapWithAudit records every request's outcome to the audit log, best
// effort: a nil log (audit disabled) is a pass-through.
func wrapWithAudit(next http.Handler, log *auditLog) http.Handler {
	if log == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		user, _ := r.Context().Value(ctxUserKey).(string)
		role, _ := r.Context().Value(ctxRoleKey).(string)
		log.add(auditEntry{
			Time:       start.UTC(),
			User:       user,
			Role:       role,
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			RemoteAddr: clientIP(r),
			UserAgent:  r.UserAgent(),
		})
	})
}

func clientIP(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); h != "" {
		if parts := strings.Split(h, ","); len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// wrapWithCORS allows the EBICS/access-API client tooling (typically a
// browser-based wallet or admin dashboard) to call across origins, and
// short-circuits CORS preflight requests before they reach auth.
func wrapWithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
