package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/gamesite/internal/views"
	"github.com/sirupsen/logrus"
)

const genericErrorMessage = "Something went wrong. Please try again."

// render writes a page, falling back to a plain 500 if the template fails.
func (s *Server) render(w http.ResponseWriter, status int, name string, data views.Page) {
	if err := s.views.Render(w, status, name, data); err != nil {
		s.log.WithError(err).WithField("page", name).Error("failed to render page")
		http.Error(w, genericErrorMessage, http.StatusInternalServerError)
	}
}

// serverError logs err with the request context and renders the generic error page.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error, msg string, fields logrus.Fields) {
	s.log.WithError(err).WithFields(fields).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error(msg)

	page := s.page("Error", s.currentUser(r))
	page.Error = genericErrorMessage
	s.render(w, http.StatusInternalServerError, "error", page)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	page := s.page("Not found", s.currentUser(r))
	page.Error = "That page does not exist."
	s.render(w, http.StatusNotFound, "error", page)
}

// roomIDParam parses the {roomID} URL parameter.
func roomIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "roomID"))
	return id, err == nil
}

func lobbyPath(roomID uuid.UUID) string {
	return "/games/cant-stop/lobby/" + roomID.String()
}

func gamePath(roomID uuid.UUID) string {
	return "/games/cant-stop/game/" + roomID.String()
}
