package server

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/dgellow/pkce-front/internal/authsession"
	"github.com/dgellow/pkce-front/internal/log"
)

//go:embed templates/*.html
var templateFS embed.FS

func mustPage(name string) *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
}

var (
	homePageTemplate          = mustPage("home")
	aboutPageTemplate         = mustPage("about")
	loginPageTemplate         = mustPage("login")
	callbackErrorPageTemplate = mustPage("callback_error")
	dashboardPageTemplate     = mustPage("dashboard")
	loadingPageTemplate       = mustPage("loading")
)

// PageData is shared by every page rendered inside the layout
type PageData struct {
	Title       string
	AppName     string
	Provider    string
	LandingPath string
	Session     authsession.Snapshot
	CSRFToken   string
	Message     string
	From        string
	RefreshURL  string // set on the loading page
}

func renderPage(w http.ResponseWriter, status int, tmpl *template.Template, data PageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
		log.LogErrorWithFields("server", "Failed to render page", map[string]any{
			"title": data.Title,
			"error": err.Error(),
		})
	}
}
