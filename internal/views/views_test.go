package views

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gamesite/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderLobby(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	host := &models.User{ID: uuid.New(), Username: "alice"}
	guest := uuid.New()
	snap := &models.RoomSnapshot{
		Room: models.Room{ID: uuid.New(), Code: "room123", HostUserID: host.ID, Status: models.RoomWaiting},
		Participants: []models.Participant{
			{UserID: host.ID, Username: "alice", IsReady: true},
			{UserID: guest, Username: "bob"},
		},
	}

	rec := httptest.NewRecorder()
	err = r.Render(rec, http.StatusForbidden, "lobby", Page{
		User:         host,
		Snapshot:     snap,
		PublicAPIKey: "pk_test",
		Error:        "Only the host can start the game",
	})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, body, "Room room123")
	assert.Contains(t, body, "Only the host can start the game")
	assert.Contains(t, body, `value="kick"`)
	assert.Contains(t, body, guest.String())
	assert.Contains(t, body, "pk_test")
}

func TestRenderEscapesUserInput(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, r.Render(rec, http.StatusBadRequest, "cantstop", Page{
		RoomCode: `"><script>x</script>`,
		Error:    "Room ID can only contain letters and numbers",
	}))
	assert.NotContains(t, rec.Body.String(), "<script>x</script>")
}

func TestRenderUnknownPage(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	assert.Error(t, r.Render(httptest.NewRecorder(), http.StatusOK, "nope", Page{}))
}

func TestEveryPageParses(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	for _, name := range []string{"home", "games", "login", "signup", "cantstop", "lobby", "game", "error"} {
		rec := httptest.NewRecorder()
		assert.NoError(t, r.Render(rec, http.StatusOK, name, Page{}), name)
	}
}

func TestInitialHandlesMultibyteNames(t *testing.T) {
	initial := funcs["initial"].(func(string) string)
	assert.Equal(t, "É", initial("émile"))
	assert.Equal(t, "李", initial("李雷"))
	assert.Equal(t, "A", initial("alice"))
	assert.Equal(t, "?", initial(""))
}

func TestLobbyCarriesRealtimeHooks(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	host := &models.User{ID: uuid.New(), Username: "alice"}
	guest := &models.User{ID: uuid.New(), Username: "bob"}
	snap := &models.RoomSnapshot{
		Room: models.Room{ID: uuid.New(), Code: "room123", HostUserID: host.ID, Status: models.RoomWaiting},
		Participants: []models.Participant{
			{UserID: host.ID, Username: "alice", IsReady: true},
			{UserID: guest.ID, Username: "bob"},
		},
	}

	rec := httptest.NewRecorder()
	require.NoError(t, r.Render(rec, http.StatusOK, "lobby", Page{User: guest, Snapshot: snap, WebSocketURL: "ws://localhost/ws"}))
	body := rec.Body.String()

	assert.Contains(t, body, `data-me="`+guest.ID.String()+`"`)
	assert.Contains(t, body, `data-host="`+host.ID.String()+`"`)
	assert.Contains(t, body, `data-room="`+snap.Room.ID.String()+`"`)
	assert.Contains(t, body, `data-name="bob" data-ready="false"`)
	assert.Contains(t, body, `id="start-form" hidden`, "start form is rendered hidden for a guest")
	assert.Contains(t, body, `id="no-wins">`)

	script, err := fs.ReadFile(staticFS, "static/lobby.js")
	require.NoError(t, err)
	assert.NotContains(t, string(script), "location.reload")
	for _, kind := range []string{"participant_update", "room_update", "win_stats_update", "game_state_update", "game_ended"} {
		assert.Contains(t, string(script), kind+":")
	}
}
