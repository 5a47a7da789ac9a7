package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/nkiryanov/crmauth/internal/handlers/render"
)

// Recover turns handler panics into 500 response
// Panic is reported to Sentry if it was initialized, otherwise only logged
func Recover(l errorLogger) func(http.Handler) http.Handler {
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

				stack := string(debug.Stack())

				hub := sentry.CurrentHub().Clone()
				hub.WithScope(func(scope *sentry.Scope) {
					scope.SetRequest(r)
					scope.SetExtra("stack", stack)
					hub.CaptureException(fmt.Errorf("panic in request: %v", rec))
				})

				l.Error("Panic recovered", "method", r.Method, "path", r.URL.Path, "panic", fmt.Sprint(rec), "stack", stack)

				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
