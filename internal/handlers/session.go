// internal/handlers/session.go
package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/jason-s-yu/gamesite/internal/auth"
	"github.com/jason-s-yu/gamesite/internal/database"
	"github.com/jason-s-yu/gamesite/internal/models"
)

// currentUser resolves the session cookie to a user. Any failure (no cookie,
// bad or expired token, deleted user) yields nil; the caller treats that as
// logged out.
func (s *Server) currentUser(r *http.Request) *models.User {
	userID, err := auth.UserIDFromRequest(r)
	if err != nil {
		if !errors.Is(err, auth.ErrNoSession) {
			s.log.WithError(err).Debug("rejected session token")
		}
		return nil
	}

	user, err := s.users.GetUserByID(r.Context(), userID)
	if err != nil {
		if !errors.Is(err, database.ErrUserNotFound) {
			s.log.WithError(err).WithField("user_id", userID).Warn("failed to load session user")
		}
		return nil
	}
	return user
}

// requireUser returns the session user, or redirects to the login page and
// returns nil.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) *models.User {
	user := s.currentUser(r)
	if user == nil {
		http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
	}
	return user
}

// safeNext returns next if it is a local path, otherwise fallback.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return fallback
	}
	return next
}
