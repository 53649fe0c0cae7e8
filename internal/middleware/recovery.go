package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
)

// Recovery turns a panic into a 500 problem response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.FromContext(r.Context()).Error("panic serving request",
				"path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
			writeProblem(w, http.StatusInternalServerError, "internal", "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}

func writeProblem(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "error": msg, "code": code})
}
