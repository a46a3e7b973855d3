// internal/handlers/lobby.go
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

// Lobby form actions, sent in the _action field.
const (
	actionLeave       = "leave"
	actionKick        = "kick"
	actionToggleReady = "toggle_ready"
	actionStartGame   = "start_game"
	actionEndGame     = "end_game"
)

// actionErrors maps expected repository errors to a status and a message
// shown on the re-rendered page.
var actionErrors = []struct {
	err    error
	status int
	msg    string
}{
	{database.ErrCannotKickSelf, http.StatusBadRequest, "You cannot kick yourself"},
	{database.ErrNotEnoughPlayers, http.StatusBadRequest, "At least 2 players are needed to start"},
	{database.ErrPlayersNotReady, http.StatusBadRequest, "All players must be ready before starting"},
	{database.ErrInvalidState, http.StatusConflict, "The room cannot do that right now"},
	{database.ErrNotParticipant, http.StatusBadRequest, "That player is not in this room"},
}

// loadRoom resolves the session and the room for a lobby or game page and
// applies the shared redirects. ok is false when a response was already written.
func (s *Server) loadRoom(w http.ResponseWriter, r *http.Request) (user *models.User, snap *models.RoomSnapshot, ok bool) {
	user = s.requireUser(w, r)
	if user == nil {
		return nil, nil, false
	}
	roomID, valid := roomIDParam(r)
	if !valid {
		s.notFound(w, r)
		return nil, nil, false
	}

	snap, err := s.rooms.Snapshot(r.Context(), roomID)
	if errors.Is(err, database.ErrRoomNotFound) {
		s.notFound(w, r)
		return nil, nil, false
	}
	if err != nil {
		s.serverError(w, r, err, "failed to load room", logrus.Fields{"room_id": roomID})
		return nil, nil, false
	}
	if _, member := snap.Participant(user.ID); !member {
		http.Redirect(w, r, "/games/cant-stop", http.StatusSeeOther)
		return nil, nil, false
	}
	return user, snap, true
}

// LobbyPage renders the waiting room. Participants of a room that is playing
// are sent to the game page.
func (s *Server) LobbyPage(w http.ResponseWriter, r *http.Request) {
	user, snap, ok := s.loadRoom(w, r)
	if !ok {
		return
	}
	if snap.Room.Status == models.RoomPlaying {
		http.Redirect(w, r, gamePath(snap.Room.ID), http.StatusSeeOther)
		return
	}
	s.renderLobby(w, r, user, snap, http.StatusOK, "")
}

// LobbyActionHandler handles the lobby's form posts.
func (s *Server) LobbyActionHandler(w http.ResponseWriter, r *http.Request) {
	user, snap, ok := s.loadRoom(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	roomID := snap.Room.ID
	action := r.PostFormValue("_action")
	fields := logrus.Fields{"room_id": roomID, "user_id": user.ID, "action": action}

	var err error
	switch action {
	case actionLeave:
		err = s.rooms.Leave(ctx, roomID, user.ID)
		if err == nil || errors.Is(err, database.ErrNotParticipant) || errors.Is(err, database.ErrRoomNotFound) {
			http.Redirect(w, r, "/games/cant-stop", http.StatusSeeOther)
			return
		}

	case actionKick:
		target, perr := uuid.Parse(strings.TrimSpace(r.PostFormValue("targetUserId")))
		if perr != nil {
			s.renderLobby(w, r, user, snap, http.StatusBadRequest, "Choose a player to kick")
			return
		}
		fields["target"] = target
		err = s.rooms.Kick(ctx, roomID, user.ID, target)
		if errors.Is(err, database.ErrNotHost) {
			s.renderLobby(w, r, user, snap, http.StatusForbidden, "Only the host can kick players")
			return
		}

	case actionToggleReady:
		_, err = s.rooms.ToggleReady(ctx, roomID, user.ID)
		if errors.Is(err, database.ErrNotParticipant) {
			http.Redirect(w, r, "/games/cant-stop", http.StatusSeeOther)
			return
		}

	case actionStartGame:
		err = s.rooms.StartGame(ctx, roomID, user.ID)
		if errors.Is(err, database.ErrNotHost) {
			s.renderLobby(w, r, user, snap, http.StatusForbidden, "Only the host can start the game")
			return
		}
		if err == nil {
			http.Redirect(w, r, gamePath(roomID), http.StatusSeeOther)
			return
		}

	default:
		s.renderLobby(w, r, user, snap, http.StatusBadRequest, "Unknown action")
		return
	}

	if err != nil {
		s.actionFailed(w, r, user, snap, err, fields)
		return
	}

	fresh, err := s.rooms.Snapshot(ctx, roomID)
	if errors.Is(err, database.ErrRoomNotFound) {
		http.Redirect(w, r, "/games/cant-stop", http.StatusSeeOther)
		return
	}
	if err != nil {
		s.serverError(w, r, err, "failed to reload room", fields)
		return
	}
	s.renderLobby(w, r, user, fresh, http.StatusOK, "")
}

// actionFailed renders the page again with the message for an expected
// error, or the generic 500 page for anything else.
func (s *Server) actionFailed(w http.ResponseWriter, r *http.Request, user *models.User, snap *models.RoomSnapshot, err error, fields logrus.Fields) {
	for _, e := range actionErrors {
		if errors.Is(err, e.err) {
			s.renderLobby(w, r, user, snap, e.status, e.msg)
			return
		}
	}
	s.serverError(w, r, err, "lobby action failed", fields)
}

func (s *Server) renderLobby(w http.ResponseWriter, r *http.Request, user *models.User, snap *models.RoomSnapshot, status int, msg string) {
	page := s.page("Room "+snap.Room.Code, user)
	page.Snapshot = snap
	page.Error = msg
	page.WebSocketURL = s.websocketURL(snap.Room.ID)
	s.render(w, status, "lobby", page)
}

// websocketURL is the realtime bridge address the browser opens, built on
// BACKEND_URL with its scheme switched to ws or wss.
func (s *Server) websocketURL(roomID uuid.UUID) string {
	base := strings.TrimRight(s.backendURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + lobbyPath(roomID) + "/ws"
}
