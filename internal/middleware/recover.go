package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/quizarena/economy-api/internal/pkg/logger"
	"github.com/quizarena/economy-api/internal/pkg/response"
)

// Recover turns a handler panic into a 500. Any transaction the handler held
// is rolled back by database.WithTx before the panic reaches here.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.FromContext(r.Context()).Error().
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Str("route", routePattern(r)).
				Str("method", r.Method).
				Msg("Panic recovered")

			response.InternalError(w)
		}()

		next.ServeHTTP(w, r)
	})
}
