package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/shopdw/api/responses"
	pkgerrors "github.com/angelmondragon/shopdw/pkg/errors"
	"github.com/angelmondragon/shopdw/pkg/logger"
)

// Recoverer turns a panicking health or metrics handler into a 500 envelope
// so the load loop sharing the process keeps running. http.ErrAbortHandler
// is re-raised for net/http to handle.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"panic":  fmt.Sprint(rec),
						"method": r.Method,
						"path":   r.URL.Path,
					})
				}
				err := pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("handler panic: %v", rec))
				responses.WriteError(ctx, logg, w, err)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
