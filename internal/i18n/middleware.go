package i18n

import "net/http"

// Middleware injects a localizer into every request context. A non-empty
// lang pins the language; otherwise it is negotiated from Accept-Language.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chosen := lang
			if chosen == "" {
				chosen = Negotiate(r.Header.Get("Accept-Language"))
			}
			w.Header().Set("Content-Language", chosen)
			ctx := WithLocalizer(r.Context(), NewLocalizer(chosen))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
