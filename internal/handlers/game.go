// internal/handlers/game.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gamesite/internal/database"
	"github.com/jason-s-yu/gamesite/internal/models"
	"github.com/sirupsen/logrus"
)

// GamePage renders the in-game page. Rooms that are not playing send their
// participants back to the lobby.
func (s *Server) GamePage(w http.ResponseWriter, r *http.Request) {
	user, snap, ok := s.loadRoom(w, r)
	if !ok {
		return
	}
	if snap.Room.Status != models.RoomPlaying {
		http.Redirect(w, r, lobbyPath(snap.Room.ID), http.StatusSeeOther)
		return
	}
	s.renderGame(w, user, snap, http.StatusOK, "")
}

// GameActionHandler handles end_game: the host records the winner and the
// room returns to the lobby.
func (s *Server) GameActionHandler(w http.ResponseWriter, r *http.Request) {
	user, snap, ok := s.loadRoom(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if r.PostFormValue("_action") != actionEndGame {
		s.renderGame(w, user, snap, http.StatusBadRequest, "Unknown action")
		return
	}

	winner, err := uuid.Parse(strings.TrimSpace(r.PostFormValue("winnerUserId")))
	if err != nil {
		s.renderGame(w, user, snap, http.StatusBadRequest, "Choose the winner")
		return
	}

	roomID := snap.Room.ID
	err = s.rooms.FinishGame(r.Context(), roomID, user.ID, winner)
	switch {
	case err == nil, errors.Is(err, database.ErrInvalidState):
		http.Redirect(w, r, lobbyPath(roomID), http.StatusSeeOther)
	case errors.Is(err, database.ErrNotHost):
		s.renderGame(w, user, snap, http.StatusForbidden, "Only the host can end the game")
	case errors.Is(err, database.ErrNotParticipant):
		s.renderGame(w, user, snap, http.StatusBadRequest, "The winner must be a player in this room")
	default:
		s.serverError(w, r, err, "failed to finish game", logrus.Fields{
			"room_id": roomID,
			"user_id": user.ID,
			"winner":  winner,
		})
	}
}

func (s *Server) renderGame(w http.ResponseWriter, user *models.User, snap *models.RoomSnapshot, status int, msg string) {
	page := s.page("Can't Stop", user)
	page.Snapshot = snap
	page.Error = msg
	page.WebSocketURL = s.websocketURL(snap.Room.ID)
	s.render(w, status, "game", page)
}
