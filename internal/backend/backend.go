// Package backend is the stub API the client application talks to. Besides
// its own routes it embeds a development authorization server that
// auto-approves a single demo user.
package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/pkce-front/internal/config"
	"github.com/dgellow/pkce-front/internal/emailutil"
	"github.com/dgellow/pkce-front/internal/envutil"
	"github.com/dgellow/pkce-front/internal/idp"
	jsonwriter "github.com/dgellow/pkce-front/internal/json"
	"github.com/dgellow/pkce-front/internal/log"
	"github.com/dgellow/pkce-front/internal/oauth"
	"github.com/dgellow/pkce-front/internal/server"
)

const (
	realm          = "pkce-backend"
	codeLifespan   = 10 * time.Minute
	minStateLength = 8
	maxTokenBody   = 64 << 10
)

// Server holds the backend routes and the dev authorization server state
type Server struct {
	authz          *oauth.AuthorizationServer
	clients        oauth.ClientRegistry
	grants         *oauth.GrantStore
	limiter        *RateLimiter
	user           idp.Profile
	allowedOrigins []string
}

// NewServer builds the backend from its resolved config
func NewServer(cfg config.BackendConfig) (*Server, error) {
	minState := minStateLength
	if envutil.IsDev() {
		minState = 0
	}

	authz, err := oauth.NewAuthorizationServer(oauth.AuthorizationServerConfig{
		JWTSecret:       []byte(cfg.JWTSecret),
		Issuer:          cfg.Issuer,
		AccessTokenTTL:  cfg.TokenTTL,
		CodeLifespan:    codeLifespan,
		MinStateEntropy: minState,
	})
	if err != nil {
		return nil, fmt.Errorf("creating authorization server: %w", err)
	}

	return &Server{
		authz:   authz,
		clients: oauth.NewClientRegistry(cfg.Clients),
		grants:  oauth.NewGrantStore(),
		limiter: NewRateLimiter(cfg.TokenRateLimit),
		user: idp.Profile{
			ID:    cfg.User.ID,
			Name:  cfg.User.Name,
			Email: emailutil.Normalize(cfg.User.Email),
			Extra: cfg.User.Extra,
		},
		allowedOrigins: cfg.AllowedOrigins,
	}, nil
}

// Grants exposes the authorization code store so expired codes can be swept
func (s *Server) Grants() *oauth.GrantStore {
	return s.grants
}

// Limiter exposes the token endpoint rate limiter so idle entries can be swept
func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}

// Handler returns the backend's HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.rootHandler)
	mux.HandleFunc("GET /me", s.meHandler)
	mux.HandleFunc("GET /authorize", s.authorizeHandler)
	mux.Handle("POST /token", s.limiter.Middleware(http.HandlerFunc(s.tokenHandler)))
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", s.metadataHandler)
	mux.HandleFunc("GET /.well-known/openid-configuration", s.metadataHandler)
	mux.Handle("GET /health", server.NewHealthHandler())

	return server.ChainMiddleware(mux,
		server.NewCORSMiddleware(s.allowedOrigins),
		server.NewLoggerMiddleware("backend"),
		server.NewRecoverMiddleware("backend"),
	)
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	if err := jsonwriter.Write(w, map[string]string{"message": "Hi"}); err != nil {
		log.LogError("Failed to write root response: %v", err)
	}
}

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		jsonwriter.WriteBearerChallenge(w, realm, "", "Missing bearer token")
		return
	}

	claims, err := s.authz.VerifyAccessToken(token)
	if err != nil {
		log.LogDebugWithFields("backend", "Rejected access token", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteBearerChallenge(w, realm, "invalid_token", "Invalid or expired access token")
		return
	}
	if claims.Subject != s.user.ID {
		jsonwriter.WriteBearerChallenge(w, realm, "invalid_token", "Unknown subject")
		return
	}

	if err := jsonwriter.Write(w, s.user); err != nil {
		log.LogError("Failed to write profile: %v", err)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (s *Server) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	client, ok := s.clients.Lookup(q.Get("client_id"))
	if !ok {
		oauth.WriteTokenError(w, http.StatusBadRequest, oauth.NewOAuthError(oauth.ErrInvalidClient, "unknown client_id"))
		return
	}

	// errors only go back to the client once its redirect URI is trusted
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" || oauth.ValidateRedirectURI(redirectURI, client) != nil {
		oauth.WriteTokenError(w, http.StatusBadRequest, oauth.NewOAuthError(oauth.ErrInvalidRequest, "redirect_uri is missing or not registered"))
		return
	}

	params, err := s.authz.ParseAuthorizeRequest(q, client)
	if err != nil {
		var oauthErr *oauth.OAuthError
		if !errors.As(err, &oauthErr) {
			oauthErr = oauth.NewOAuthError(oauth.ErrServerError, "invalid authorization request")
		}
		oauth.WriteAuthorizeError(w, r, redirectURI, q.Get("state"), oauthErr)
		return
	}

	grant, err := s.authz.IssueCode(params, s.user.ID)
	if err != nil {
		log.LogErrorWithFields("backend", "Failed to issue authorization code", map[string]any{
			"error": err.Error(),
		})
		oauth.WriteAuthorizeError(w, r, redirectURI, params.State, oauth.NewOAuthError(oauth.ErrServerError, "failed to issue code"))
		return
	}
	s.grants.Put(grant)

	target, err := url.Parse(params.RedirectURI)
	if err != nil {
		oauth.WriteTokenError(w, http.StatusBadRequest, oauth.NewOAuthError(oauth.ErrInvalidRequest, "invalid redirect_uri"))
		return
	}
	query := target.Query()
	query.Set("code", grant.Code)
	if params.State != "" {
		query.Set("state", params.State)
	}
	target.RawQuery = query.Encode()

	log.LogInfoWithFields("backend", "Authorization code issued", map[string]any{
		"client":  params.ClientID,
		"subject": grant.Subject,
	})
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// tokenRequest accepts both the JSON and the form encoding of a token request
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
}

func parseTokenRequest(w http.ResponseWriter, r *http.Request) (*tokenRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTokenBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		return &req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	req := &tokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RefreshToken: r.PostForm.Get("refresh_token"),
	}
	// client_secret_basic
	if id, secret, ok := r.BasicAuth(); ok {
		if req.ClientID == "" {
			req.ClientID, _ = url.QueryUnescape(id)
		}
		if req.ClientSecret == "" {
			req.ClientSecret, _ = url.QueryUnescape(secret)
		}
	}
	return req, nil
}

func (s *Server) tokenHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseTokenRequest(w, r)
	if err != nil {
		oauth.WriteTokenError(w, http.StatusBadRequest, oauth.NewOAuthError(oauth.ErrInvalidRequest, err.Error()))
		return
	}

	client, ok := s.clients.Lookup(req.ClientID)
	if !ok {
		oauth.WriteTokenError(w, http.StatusUnauthorized, oauth.NewOAuthError(oauth.ErrInvalidClient, "unknown client_id"))
		return
	}

	var pair *oauth.TokenPair
	switch req.GrantType {
	case "authorization_code":
		if req.Code == "" {
			oauth.WriteTokenError(w, http.StatusBadRequest, oauth.NewOAuthError(oauth.ErrInvalidRequest, "code is required"))
			return
		}
		grant, found := s.grants.Consume(req.Code)
		if !found {
			oauth.WriteTokenError(w, http.StatusBadRequest, oauth.NewOAuthError(oauth.ErrInvalidGrant, "authorization code is invalid or was already used"))
			return
		}
		pair, err = s.authz.ExchangeCode(grant, &oauth.ExchangeCodeRequest{
			RedirectURI:  req.RedirectURI,
			CodeVerifier: req.CodeVerifier,
			ClientSecret: req.ClientSecret,
		}, client)
	case "refresh_token":
		pair, err = s.authz.RefreshTokens(req.RefreshToken, client, &oauth.RefreshRequest{
			ClientSecret: req.ClientSecret,
		})
	default:
		oauth.WriteTokenError(w, http.StatusBadRequest, oauth.NewOAuthError(oauth.ErrUnsupportedGrantType, "grant_type must be authorization_code or refresh_token"))
		return
	}

	if err != nil {
		var oauthErr *oauth.OAuthError
		if !errors.As(err, &oauthErr) {
			log.LogErrorWithFields("backend", "Token issuance failed", map[string]any{
				"error": err.Error(),
			})
			oauthErr = oauth.NewOAuthError(oauth.ErrServerError, "failed to issue tokens")
		}
		log.LogInfoWithFields("backend", "Token request rejected", map[string]any{
			"client": req.ClientID,
			"grant":  req.GrantType,
			"error":  string(oauthErr.Code),
		})
		oauth.WriteTokenError(w, oauth.TokenErrorStatus(oauthErr.Code), oauthErr)
		return
	}

	oauth.WriteTokenResponse(w, pair)
}

func (s *Server) metadataHandler(w http.ResponseWriter, r *http.Request) {
	metadata, err := oauth.AuthorizationServerMetadata(s.authz.Issuer())
	if err != nil {
		log.LogError("Failed to build authorization server metadata: %v", err)
		jsonwriter.WriteInternalServerError(w, "Internal server error")
		return
	}
	if err := jsonwriter.Write(w, metadata); err != nil {
		log.LogError("Failed to encode metadata: %v", err)
	}
}
