package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/fleetwatch/fleetwatch/internal/httputil"
)

// APIKey guards ingestion endpoints with a static key list checked against
// the X-API-Key header. With no configured keys the check is disabled and
// every request passes; full credential management lives outside this
// service.
func APIKey(keys []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(keys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get("X-API-Key")
		for _, key := range keys {
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}

		httputil.WriteError(w, http.StatusUnauthorized, "invalid or missing API key")
	})
}
