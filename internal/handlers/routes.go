// internal/handlers/routes.go
package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jason-s-yu/gamesite/internal/middleware"
	"github.com/jason-s-yu/gamesite/internal/views"
)

// Routes builds the site's router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.HealthHandler)
	r.Handle("/static/*", http.StripPrefix("/static/", views.Static()))

	r.Group(func(r chi.Router) {
		r.Use(middleware.LogMiddleware(s.log))

		r.Get("/", s.HomePage)
		r.Get("/games", s.GamesPage)

		r.Get("/login", s.LoginPage)
		r.Post("/login", s.LoginHandler)
		r.Get("/signup", s.SignupPage)
		r.Post("/signup", s.SignupHandler)
		r.Post("/logout", s.LogoutHandler)

		r.Route("/games/cant-stop", func(r chi.Router) {
			r.Get("/", s.CantStopPage)
			r.Post("/", s.JoinRoomHandler)

			r.Get("/lobby/{roomID}", s.LobbyPage)
			r.Post("/lobby/{roomID}", s.LobbyActionHandler)
			r.Get("/lobby/{roomID}/ws", s.LobbyWSHandler)

			r.Get("/game/{roomID}", s.GamePage)
			r.Post("/game/{roomID}", s.GameActionHandler)
		})
	})

	r.NotFound(s.notFound)
	return r
}

// LogRoutes logs every registered route at debug level.
func (s *Server) LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	var routes []routeDef
	err := chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		s.log.WithError(err).Error("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	for _, rt := range routes {
		s.log.Debugf("route %s %s", rt.Method, rt.Path)
	}
}
