package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopdw/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"
	maxRequestID    = 64
)

var requestIDRe = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// RequestID tags each request with an id for the log line. Caller supplied
// ids are kept only when short and free of control or separator characters;
// anything else is replaced with a fresh uuid.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if !validRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			if logg != nil {
				r = r.WithContext(logg.WithField(r.Context(), "request_id", id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validRequestID(id string) bool {
	return id != "" && len(id) <= maxRequestID && requestIDRe.MatchString(id)
}
