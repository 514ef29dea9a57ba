package server

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/dgellow/pkce-front/internal/authsession"
	"github.com/dgellow/pkce-front/internal/cookie"
	"github.com/dgellow/pkce-front/internal/crypto"
	jsonwriter "github.com/dgellow/pkce-front/internal/json"
	"github.com/dgellow/pkce-front/internal/log"
	"github.com/dgellow/pkce-front/internal/urlutil"
)

const (
	csrfTokenTTL = time.Hour
	returnToTTL  = 10 * time.Minute
)

// AppHandlers serves the browser-facing pages of the client application
type AppHandlers struct {
	appName      string
	landingPath  string
	callbackPath string
	providerType string
	csrf         crypto.CSRFProtection
	returnTo     crypto.TokenSigner
}

type returnToPayload struct {
	Path string `json:"path"`
}

// NewAppHandlers creates the page handlers. signingKey protects the CSRF
// tokens and the return location cookie.
func NewAppHandlers(appName, landingPath, callbackPath string, signingKey []byte, providerType string) *AppHandlers {
	return &AppHandlers{
		appName:      appName,
		landingPath:  landingPath,
		callbackPath: callbackPath,
		providerType: providerType,
		csrf:         crypto.NewCSRFProtection(signingKey, csrfTokenTTL),
		returnTo:     crypto.NewTokenSigner(signingKey, returnToTTL),
	}
}

func (h *AppHandlers) session(w http.ResponseWriter, r *http.Request) (*authsession.Session, bool) {
	s, ok := SessionFromContext(r.Context())
	if !ok {
		log.LogError("Handler %s used without browser session middleware", r.URL.Path)
		jsonwriter.WriteInternalServerError(w, "Session unavailable")
	}
	return s, ok
}

// render fills in the layout fields and a CSRF token bound to the browser session
func (h *AppHandlers) render(w http.ResponseWriter, r *http.Request, status int, tmpl *template.Template, data PageData) {
	data.AppName = h.appName
	data.Provider = h.providerType
	data.LandingPath = h.landingPath
	if s, ok := SessionFromContext(r.Context()); ok {
		token, err := h.csrf.Generate(s.ID())
		if err != nil {
			log.LogErrorWithFields("server", "Failed to generate CSRF token", map[string]any{
				"error": err.Error(),
			})
		}
		data.CSRFToken = token
	}
	renderPage(w, status, tmpl, data)
}

func (h *AppHandlers) validCSRF(r *http.Request, s *authsession.Session) bool {
	return h.csrf.Validate(s.ID(), r.FormValue("csrf_token"))
}

// HomeHandler renders the public landing page
func (h *AppHandlers) HomeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, homePageTemplate, PageData{Title: "Home", Session: s.Snapshot()})
}

// AboutHandler renders the public about page
func (h *AppHandlers) AboutHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, aboutPageTemplate, PageData{Title: "About", Session: s.Snapshot()})
}

// LoginHandler renders the login page. Authenticated sessions go straight to
// the landing page.
func (h *AppHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	snap := s.Snapshot()
	if snap.IsAuthenticated {
		http.Redirect(w, r, h.landingPath, http.StatusFound)
		return
	}

	from := r.URL.Query().Get("from")
	if !urlutil.IsLocalPath(from) {
		from = ""
	}
	h.render(w, r, http.StatusOK, loginPageTemplate, PageData{
		Title:   "Login",
		Session: snap,
		Message: snap.Error,
		From:    from,
	})
}

// LoginStartHandler begins the authorization code flow and redirects the
// browser to the identity provider
func (h *AppHandlers) LoginStartHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if s.Snapshot().IsAuthenticated {
		http.Redirect(w, r, h.landingPath, http.StatusFound)
		return
	}

	if from := r.URL.Query().Get("from"); urlutil.IsLocalPath(from) {
		signed, err := h.returnTo.Sign(returnToPayload{Path: from})
		if err != nil {
			log.LogErrorWithFields("server", "Failed to sign return location", map[string]any{
				"error": err.Error(),
			})
		} else {
			cookie.SetReturnTo(w, signed, returnToTTL)
		}
	} else {
		cookie.ClearReturnTo(w)
	}

	err := s.InitiateLogin(r.Context(), authsession.NavigatorFunc(func(authURL string) {
		http.Redirect(w, r, authURL, http.StatusFound)
	}))
	switch {
	case err == nil:
		return
	case errors.Is(err, authsession.ErrLoginInProgress):
		h.render(w, r, http.StatusConflict, loginPageTemplate, PageData{
			Title:   "Login",
			Session: s.Snapshot(),
			Message: "A login is already in progress. Finish it in the other tab or cancel it.",
		})
	default:
		var authErr *authsession.AuthError
		message := "Failed to start login"
		if errors.As(err, &authErr) {
			message = authErr.Message
		}
		h.render(w, r, http.StatusInternalServerError, callbackErrorPageTemplate, PageData{
			Title:   "Authentication Error",
			Session: s.Snapshot(),
			Message: message,
		})
	}
}

// LoginCancelHandler abandons a pending login attempt
func (h *AppHandlers) LoginCancelHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !h.validCSRF(r, s) {
		jsonwriter.WriteForbidden(w, "Invalid CSRF token")
		return
	}

	if s.CancelLogin() {
		log.LogDebugWithFields("server", "Login cancelled", map[string]any{
			"path": r.URL.Path,
		})
	}

	target := "/login"
	if from := r.FormValue("from"); urlutil.IsLocalPath(from) {
		target = "/login?from=" + url.QueryEscape(from)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// CallbackHandler completes the login with the code and state returned by
// the identity provider
func (h *AppHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if s.Snapshot().IsAuthenticated {
		http.Redirect(w, r, h.landingPath, http.StatusFound)
		return
	}

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		log.LogWarnWithFields("server", "Identity provider returned an error", map[string]any{
			"error":       providerErr,
			"description": query.Get("error_description"),
		})
		s.CancelLogin()
		cookie.ClearReturnTo(w)
		message := query.Get("error_description")
		if message == "" {
			message = "Authorization was denied: " + providerErr
		}
		h.render(w, r, http.StatusBadRequest, callbackErrorPageTemplate, PageData{
			Title:   "Authentication Error",
			Session: s.Snapshot(),
			Message: message,
		})
		return
	}

	code := query.Get("code")
	if code == "" {
		// leaves the pending login untouched
		h.render(w, r, http.StatusBadRequest, callbackErrorPageTemplate, PageData{
			Title:   "Authentication Error",
			Session: s.Snapshot(),
			Message: authsession.KindMissingAuthorizationCode.Message(),
		})
		return
	}

	if s.HandleCallback(r.Context(), code, query.Get("state")) {
		target := h.landingPath
		if path, ok := h.verifiedReturnTo(r); ok {
			target = path
		}
		cookie.ClearReturnTo(w)
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	snap := s.Snapshot()
	switch snap.State {
	case authsession.Errored:
		cookie.ClearReturnTo(w)
		h.render(w, r, callbackErrorStatus(snap.ErrorKind), callbackErrorPageTemplate, PageData{
			Title:   "Authentication Error",
			Session: snap,
			Message: snap.Error,
		})
	case authsession.CallbackPending:
		// another request is exchanging this code
		h.render(w, r, http.StatusOK, loadingPageTemplate, PageData{
			Title:      "Loading",
			Session:    snap,
			RefreshURL: h.landingPath,
		})
	case authsession.Authenticated:
		http.Redirect(w, r, h.landingPath, http.StatusFound)
	default:
		// overtaken by logout or a new login attempt
		http.Redirect(w, r, "/login", http.StatusFound)
	}
}

func (h *AppHandlers) verifiedReturnTo(r *http.Request) (string, bool) {
	value, err := cookie.GetReturnTo(r)
	if err != nil {
		return "", false
	}
	var payload returnToPayload
	if err := h.returnTo.Verify(value, &payload); err != nil {
		log.LogDebugWithFields("server", "Ignoring invalid return location", map[string]any{
			"error": err.Error(),
		})
		return "", false
	}
	if !urlutil.IsLocalPath(payload.Path) {
		return "", false
	}
	return payload.Path, true
}

func callbackErrorStatus(kind authsession.ErrorKind) int {
	switch kind {
	case authsession.KindTokenExchangeFailed, authsession.KindProfileFetchFailed:
		return http.StatusBadGateway
	case authsession.KindSecureRandomUnavailable:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// LogoutHandler clears the session and its stored tokens
func (h *AppHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if !h.validCSRF(r, s) {
		jsonwriter.WriteForbidden(w, "Invalid CSRF token")
		return
	}

	s.Logout(r.Context())
	cookie.ClearReturnTo(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// DashboardHandler renders the protected landing page. Wrap it with RequireAuth.
func (h *AppHandlers) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, dashboardPageTemplate, PageData{Title: "Dashboard", Session: s.Snapshot()})
}

// SessionStateHandler returns the session snapshot as JSON
func (h *AppHandlers) SessionStateHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := jsonwriter.Write(w, s.Snapshot()); err != nil {
		log.LogErrorWithFields("server", "Failed to encode session snapshot", map[string]any{
			"error": err.Error(),
		})
	}
}
