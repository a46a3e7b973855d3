// internal/handlers/cantstop.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/jason-s-yu/gamesite/internal/database"
	"github.com/jason-s-yu/gamesite/internal/lobby"
	"github.com/jason-s-yu/gamesite/internal/models"
	"github.com/jason-s-yu/gamesite/internal/views"
	"github.com/sirupsen/logrus"
)

var joinFailureMessages = map[database.JoinFailure]string{
	database.JoinRoomFull:      "This room is full",
	database.JoinAlreadyInRoom: "You are already in another room. Leave it before joining a new one.",
	database.JoinInvalidState:  "This game has already started",
}

// CantStopPage renders the room code form, with a link back to the user's
// active room if they have one.
func (s *Server) CantStopPage(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}
	page, ok := s.joinPage(w, r, user)
	if !ok {
		return
	}
	s.render(w, http.StatusOK, "cantstop", page)
}

// JoinRoomHandler validates the roomId field and joins or creates that room.
// Validation failures answer 400 with the violation's message and never reach
// the database.
func (s *Server) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	raw := r.PostFormValue("roomId")

	res, err := s.rooms.Join(r.Context(), raw, user.ID)
	var codeErr *lobby.CodeError
	switch {
	case errors.As(err, &codeErr):
		s.renderJoinError(w, r, user, raw, http.StatusBadRequest, codeErr.Error())
		return
	case err != nil:
		s.serverError(w, r, err, "failed to join room", logrus.Fields{"user_id": user.ID, "code": raw})
		return
	case !res.OK():
		msg, known := joinFailureMessages[res.Failure]
		if !known {
			msg = genericErrorMessage
		}
		s.renderJoinError(w, r, user, raw, http.StatusConflict, msg)
		return
	}

	http.Redirect(w, r, lobbyPath(res.RoomID), http.StatusSeeOther)
}

func (s *Server) renderJoinError(w http.ResponseWriter, r *http.Request, user *models.User, raw string, status int, msg string) {
	page, ok := s.joinPage(w, r, user)
	if !ok {
		return
	}
	page.RoomCode = raw
	page.Error = msg
	s.render(w, status, "cantstop", page)
}

func (s *Server) joinPage(w http.ResponseWriter, r *http.Request, user *models.User) (views.Page, bool) {
	page := s.page("Can't Stop", user)
	active, err := s.rooms.ActiveRoom(r.Context(), user.ID)
	if err != nil {
		s.serverError(w, r, err, "failed to load active room", logrus.Fields{"user_id": user.ID})
		return page, false
	}
	page.ActiveRoom = active
	return page, true
}
