package web

import (
	"net/http"
)

// crossOrigin refuses state changing requests made by pages from other
// origins, using Go's cross-origin protection. Requests carrying neither
// Sec-Fetch-Site nor Origin are not from a browser and are let through; the
// window session check still applies to them.
func (rt *runtime) crossOrigin(next http.Handler) http.Handler {
	cop := http.NewCrossOriginProtection()
	cop.SetDenyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt.log.Warn("cross-origin request refused",
			"uri", r.URL.RequestURI(),
			"origin", r.Header.Get("Origin"),
			"sec-fetch-site", r.Header.Get("Sec-Fetch-Site"),
		)
		rt.jsonError(w, "", "cross-origin request refused", http.StatusForbidden)
	}))
	return cop.Handler(next)
}
