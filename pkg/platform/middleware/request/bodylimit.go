package request

import (
	"fmt"
	"net/http"

	dErrors "fleetdesk/pkg/domain-errors"
	"fleetdesk/pkg/platform/httputil"
)

// BodyLimit caps request bodies at maxBytes. A declared Content-Length over
// the cap is answered with 413 before the handler runs. Bodies without a
// length fail on read with *http.MaxBytesError, which httputil.DecodeJSON
// also turns into 413. maxBytes <= 0 disables the cap.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Connection", "close")
				httputil.WriteError(w, dErrors.New(dErrors.CodeTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxBytes)))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
