package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/dgellow/pkce-front/internal/authsession"
	"github.com/dgellow/pkce-front/internal/cookie"
	"github.com/dgellow/pkce-front/internal/crypto"
	jsonwriter "github.com/dgellow/pkce-front/internal/json"
	"github.com/dgellow/pkce-front/internal/log"
)

type sessionContextKey struct{}

// WithSession returns a context carrying the auth session of the request
func WithSession(ctx context.Context, s *authsession.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the auth session stored by the browser session middleware
func SessionFromContext(ctx context.Context) (*authsession.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*authsession.Session)
	return s, ok
}

// signSessionID returns "<id>.<hmac>" so clients cannot pick their own ID
func signSessionID(id string, key []byte) string {
	return id + "." + crypto.SignData(id, key)
}

func parseSessionCookie(value string, key []byte) (string, bool) {
	id, signature, ok := strings.Cut(value, ".")
	if !ok || id == "" || signature == "" {
		return "", false
	}
	if !crypto.ValidateSignedData(id, signature, key) {
		return "", false
	}
	return id, true
}

// NewBrowserSessionMiddleware resolves the pkce_session cookie to an
// AuthSession, issuing a new browser session when the cookie is missing or
// forged. The cookie has no Max-Age so it ends with the browser, the way a
// tab's state would.
func NewBrowserSessionMiddleware(sessions *authsession.Manager, signingKey []byte) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if value, err := cookie.GetSession(r); err == nil {
				if parsed, ok := parseSessionCookie(value, signingKey); ok {
					id = parsed
				} else {
					log.LogDebugWithFields("session", "Discarding invalid session cookie", map[string]any{
						"path": r.URL.Path,
					})
				}
			}

			if id == "" {
				newID, err := crypto.GenerateSecureToken()
				if err != nil {
					log.LogErrorWithFields("session", "Failed to generate session ID", map[string]any{
						"error": err.Error(),
					})
					jsonwriter.WriteInternalServerError(w, "Failed to create session")
					return
				}
				id = newID
				cookie.SetSession(w, signSessionID(id, signingKey), 0)
			}

			s := sessions.Get(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
