package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Handler builds the HTTP handler with the api routes. Process-wide
// middleware (request ids, recovery, tracing) is added by the caller.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors(a.cfg.CORSOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]bool{"ok": true}, http.StatusOK)
	})

	r.Route("/api", func(ar chi.Router) {
		ar.Get("/status", a.getStatus)
		ar.Post("/setup", a.postSetup)

		ar.Route("/auth", func(auth chi.Router) {
			auth.Post("/api/token", a.postToken)
			auth.Group(func(p chi.Router) {
				p.Use(a.deps.Auth)
				p.Get("/me", a.getMe)
				p.Get("/services", a.getServices)
				p.Get("/status", a.getServiceStatus)
			})
		})

		ar.Route("/users", func(u chi.Router) {
			u.Use(a.deps.Auth)
			u.Get("/list", a.listUsers)
			u.Post("/create", a.createUser)
			u.Delete("/delete/{id}", a.deleteUser)
		})

		ar.With(a.deps.Auth).Get("/logs/{container}", a.getLogs)
	})

	if dir := a.cfg.ClientDir; dir != "" {
		r.NotFound(spa(dir))
	}
	return r
}

// spa serves the built dashboard and falls back to index.html for client
// side routes.
func spa(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, "not found", http.StatusNotFound)
			return
		}
		p := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	}
}
