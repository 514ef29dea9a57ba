package server

import (
	"net/http"
)

// NewAppMux registers the client application's routes. Every route expects
// the browser session middleware to have run.
func NewAppMux(h *AppHandlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", h.HomeHandler)
	mux.HandleFunc("GET /about", h.AboutHandler)
	mux.HandleFunc("GET /login", h.LoginHandler)
	mux.HandleFunc("GET /login/start", h.LoginStartHandler)
	mux.HandleFunc("POST /login/cancel", h.LoginCancelHandler)
	mux.HandleFunc("GET "+h.callbackPath, h.CallbackHandler)
	mux.HandleFunc("POST /logout", h.LogoutHandler)
	mux.Handle("GET "+h.landingPath, h.RequireAuth(http.HandlerFunc(h.DashboardHandler)))
	mux.HandleFunc("GET /api/session", h.SessionStateHandler)
	return mux
}
