package server

import (
	"net/http"
	"net/url"

	"github.com/dgellow/pkce-front/internal/log"
)

// RequireAuth only lets authenticated sessions through. While the session is
// still resolving a loading page is shown that refreshes itself; anyone else
// is sent to /login with the requested location preserved in "from".
func (h *AppHandlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := SessionFromContext(r.Context())
		if !ok {
			log.LogError("RequireAuth used without browser session middleware")
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}

		snap := s.Snapshot()
		switch {
		case snap.Loading:
			h.render(w, r, http.StatusOK, loadingPageTemplate, PageData{
				Title:      "Loading",
				Session:    snap,
				RefreshURL: r.URL.RequestURI(),
			})
		case snap.IsAuthenticated:
			next.ServeHTTP(w, r)
		default:
			http.Redirect(w, r, "/login?from="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		}
	})
}
