package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

func (s *Server) HomePage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "home", s.page("", s.currentUser(r)))
}

func (s *Server) GamesPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "games", s.page("Games", s.currentUser(r)))
}

// HealthHandler runs every registered check concurrently and answers "ok" only
// if all of them pass.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var (
		g     errgroup.Group
		names = make([]string, 0, len(s.health))
	)
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := make([]error, len(names))
	for i, name := range names {
		i := i
		check := s.health[name]
		g.Go(func() error {
			errs[i] = check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for i, name := range names {
		if errs[i] != nil {
			failed = append(failed, name)
			s.log.WithError(errs[i]).WithField("check", name).Warn("health check failed")
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if len(failed) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy: " + strings.Join(failed, ", ") + "\n"))
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}
