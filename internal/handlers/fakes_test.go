package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gamesite/internal/auth"
	"github.com/jason-s-yu/gamesite/internal/database"
	"github.com/jason-s-yu/gamesite/internal/lobby"
	"github.com/jason-s-yu/gamesite/internal/models"
	"github.com/jason-s-yu/gamesite/internal/realtime"
	"github.com/jason-s-yu/gamesite/internal/views"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := auth.Init(0); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func (f *fakeUsers) add(name string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &models.User{ID: uuid.New(), Email: name + "@example.com", Username: name, Password: "password123"}
	f.users[u.ID] = u
	return u
}

func (f *fakeUsers) CreateUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return database.ErrUserExists
		}
	}
	u.ID = uuid.New()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	cp := *u
	cp.Password = ""
	return &cp, nil
}

func (f *fakeUsers) AuthenticateUser(_ context.Context, email, password string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email && u.Password == password {
			cp := *u
			cp.Password = ""
			return &cp, nil
		}
	}
	return nil, database.ErrInvalidCredentials
}

// fakeRooms is an in-memory lobby.Repository.
type fakeRooms struct {
	mu     sync.Mutex
	users  *fakeUsers
	calls  int
	err    error
	byCode map[string]uuid.UUID
	rooms  map[uuid.UUID]*models.RoomSnapshot
}

func (f *fakeRooms) JoinOrCreate(_ context.Context, code string, userID uuid.UUID) (database.JoinResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return database.JoinResult{}, f.err
	}
	id, ok := f.byCode[code]
	if !ok {
		id = uuid.New()
		f.byCode[code] = id
		f.rooms[id] = &models.RoomSnapshot{
			Room: models.Room{ID: id, Code: code, HostUserID: userID, Status: models.RoomWaiting},
		}
		f.addLocked(id, userID)
		return database.JoinResult{RoomID: id, Created: true}, nil
	}
	snap := f.rooms[id]
	if _, present := snap.Participant(userID); present {
		return database.JoinResult{RoomID: id}, nil
	}
	if snap.Room.Status == models.RoomPlaying {
		return database.JoinResult{Failure: database.JoinInvalidState}, nil
	}
	if len(snap.Participants) >= database.MaxPlayers {
		return database.JoinResult{Failure: database.JoinRoomFull}, nil
	}
	f.addLocked(id, userID)
	return database.JoinResult{RoomID: id}, nil
}

func (f *fakeRooms) addLocked(roomID, userID uuid.UUID) {
	name := ""
	if u, err := f.users.GetUserByID(context.Background(), userID); err == nil {
		name = u.Username
	}
	snap := f.rooms[roomID]
	snap.Participants = append(snap.Participants, models.Participant{RoomID: roomID, UserID: userID, Username: name})
}

func (f *fakeRooms) GetRoomSnapshot(_ context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	snap, ok := f.rooms[roomID]
	if !ok {
		return nil, database.ErrRoomNotFound
	}
	cp := *snap
	cp.Participants = append([]models.Participant{}, snap.Participants...)
	cp.WinStats = append([]models.WinStat{}, snap.WinStats...)
	return &cp, nil
}

func (f *fakeRooms) snapshot(t *testing.T, roomID uuid.UUID) *models.RoomSnapshot {
	t.Helper()
	snap, err := f.GetRoomSnapshot(context.Background(), roomID)
	require.NoError(t, err)
	return snap
}

func (f *fakeRooms) setStatus(roomID uuid.UUID, status models.RoomStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[roomID].Room.Status = status
}

func (f *fakeRooms) ToggleReady(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.rooms[roomID]
	for i := range snap.Participants {
		if snap.Participants[i].UserID == userID {
			snap.Participants[i].IsReady = !snap.Participants[i].IsReady
			return snap.Participants[i].IsReady, nil
		}
	}
	return false, database.ErrNotParticipant
}

func (f *fakeRooms) Leave(_ context.Context, roomID, userID uuid.UUID) (database.LeaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removeLocked(roomID, userID)
}

func (f *fakeRooms) removeLocked(roomID, userID uuid.UUID) (database.LeaveResult, error) {
	snap, ok := f.rooms[roomID]
	if !ok {
		return database.LeaveResult{}, database.ErrRoomNotFound
	}
	if _, present := snap.Participant(userID); !present {
		return database.LeaveResult{}, database.ErrNotParticipant
	}
	var kept []models.Participant
	for _, p := range snap.Participants {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	snap.Participants = kept
	if len(kept) == 0 {
		delete(f.rooms, roomID)
		delete(f.byCode, snap.Room.Code)
		return database.LeaveResult{RoomDeleted: true}, nil
	}
	if snap.Room.HostUserID == userID {
		snap.Room.HostUserID = kept[0].UserID
		return database.LeaveResult{NewHostID: kept[0].UserID}, nil
	}
	return database.LeaveResult{}, nil
}

func (f *fakeRooms) Kick(_ context.Context, roomID, hostID, targetID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[roomID].Room.HostUserID != hostID {
		return database.ErrNotHost
	}
	if hostID == targetID {
		return database.ErrCannotKickSelf
	}
	_, err := f.removeLocked(roomID, targetID)
	return err
}

func (f *fakeRooms) StartGame(_ context.Context, roomID, userID uuid.UUID) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.rooms[roomID]
	switch {
	case snap.Room.HostUserID != userID:
		return nil, database.ErrNotHost
	case snap.Room.Status == models.RoomPlaying:
		return nil, database.ErrInvalidState
	case len(snap.Participants) < database.MinPlayers:
		return nil, database.ErrNotEnoughPlayers
	case !snap.AllReady():
		return nil, database.ErrPlayersNotReady
	}
	snap.Room.Status = models.RoomPlaying
	room := snap.Room
	return &room, nil
}

func (f *fakeRooms) FinishGame(_ context.Context, roomID, hostID, winnerID uuid.UUID) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.rooms[roomID]
	switch {
	case snap.Room.HostUserID != hostID:
		return nil, database.ErrNotHost
	case snap.Room.Status != models.RoomPlaying:
		return nil, database.ErrInvalidState
	}
	if _, present := snap.Participant(winnerID); !present {
		return nil, database.ErrNotParticipant
	}
	snap.Room.Status = models.RoomFinished
	snap.WinStats = append(snap.WinStats, models.WinStat{RoomID: roomID, UserID: winnerID, Wins: 1})
	for i := range snap.Participants {
		snap.Participants[i].IsReady = false
	}
	room := snap.Room
	return &room, nil
}

func (f *fakeRooms) ActiveRoomForUser(_ context.Context, userID uuid.UUID) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, snap := range f.rooms {
		if _, present := snap.Participant(userID); present && snap.Room.Status.Active() {
			room := snap.Room
			return &room, nil
		}
	}
	return nil, nil
}

// testEnv wires a Server to in-memory stores.
type testEnv struct {
	users     *fakeUsers
	rooms     *fakeRooms
	transport realtime.Transport
	handler   http.Handler
}

const testAPIKey = "pk_test"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	renderer, err := views.New()
	require.NoError(t, err)

	env := &testEnv{users: &fakeUsers{users: make(map[uuid.UUID]*models.User)}}
	env.rooms = &fakeRooms{
		users:  env.users,
		byCode: make(map[string]uuid.UUID),
		rooms:  make(map[uuid.UUID]*models.RoomSnapshot),
	}

	srv := NewServer(Options{
		Logger:       logger,
		Views:        renderer,
		Users:        env.users,
		Rooms:        lobby.NewService(env.rooms, nil, logger),
		BackendURL:   "http://localhost:8080",
		PublicAPIKey: testAPIKey,
		NewTransport: func() realtime.Transport { return env.transport },
		HealthChecks: map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		},
	})
	env.handler = srv.Routes()
	return env
}

// do sends a request, with user's session cookie when user is not nil.
func (e *testEnv) do(t *testing.T, method, target string, form url.Values, user *models.User) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if user != nil {
		token, err := auth.CreateJWT(user.ID)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// join creates or joins code as user and returns the room id.
func (e *testEnv) join(t *testing.T, code string, user *models.User) uuid.UUID {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/games/cant-stop", url.Values{"roomId": {code}}, user)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/games/cant-stop/lobby/"), loc)
	id, err := uuid.Parse(strings.TrimPrefix(loc, "/games/cant-stop/lobby/"))
	require.NoError(t, err)
	return id
}
