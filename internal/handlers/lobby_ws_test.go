package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/gamesite/internal/auth"
	"github.com/jason-s-yu/gamesite/internal/models"
	"github.com/jason-s-yu/gamesite/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopTransport acknowledges every subscribe and lets the test push payloads.
type loopTransport struct {
	mu       sync.Mutex
	channels map[string]*loopChannel
}

type loopChannel struct {
	mu        sync.Mutex
	onPayload func([]byte)
}

func (l *loopTransport) Connect(context.Context) error { return nil }

func (l *loopTransport) Channel(name string) realtime.Channel {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := &loopChannel{}
	l.channels[name] = ch
	return ch
}

func (l *loopTransport) push(t *testing.T, name string, m realtime.Message) {
	t.Helper()
	data, err := realtime.Encode(m)
	require.NoError(t, err)

	l.mu.Lock()
	ch := l.channels[name]
	l.mu.Unlock()
	require.NotNil(t, ch, "no channel %s", name)

	ch.mu.Lock()
	deliver := ch.onPayload
	ch.mu.Unlock()
	deliver(data)
}

func (c *loopChannel) Subscribe(onPayload func([]byte), onStatus realtime.StatusFunc) {
	c.mu.Lock()
	c.onPayload = onPayload
	c.mu.Unlock()
	go onStatus(realtime.StatusSubscribed, nil)
}

func (c *loopChannel) Unsubscribe() error { return nil }

type wsFrame struct {
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	Game    string          `json:"game"`
	Payload json.RawMessage `json:"payload"`
}

func dialLobby(t *testing.T, ts *httptest.Server, path, apiKey string, user *models.User) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	token, err := auth.CreateJWT(user.ID)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Cookie", auth.CookieName+"="+token)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+path+"/ws?apikey="+apiKey, &websocket.DialOptions{
		HTTPHeader:   header,
		Subprotocols: []string{wsSubprotocol},
	})
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, c *websocket.Conn, match func(wsFrame) bool) wsFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)
		var f wsFrame
		require.NoError(t, json.Unmarshal(data, &f))
		if match(f) {
			return f
		}
	}
}

func TestLobbyWebSocketBridgesRealtime(t *testing.T) {
	env := newTestEnv(t)
	transport := &loopTransport{channels: make(map[string]*loopChannel)}
	env.transport = transport
	alice := env.users.add("alice")
	roomID := env.join(t, "room123", alice)

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	c, _, err := dialLobby(t, ts, lobbyPath(roomID), testAPIKey, alice)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	readUntil(t, c, func(f wsFrame) bool {
		return f.Type == frameConnStatus && f.Room == "connected" && f.Game == "connected"
	})

	transport.push(t, realtime.RoomChannel(roomID), realtime.ParticipantUpdate{
		Participants: []models.Participant{{RoomID: roomID, UserID: alice.ID, Username: "alice"}},
	})
	f := readUntil(t, c, func(f wsFrame) bool { return f.Type == string(realtime.KindParticipantUpdate) })
	assert.Contains(t, string(f.Payload), alice.ID.String())

	transport.push(t, realtime.GameChannel(roomID), realtime.GameStateUpdate{Status: models.RoomPlaying})
	readUntil(t, c, func(f wsFrame) bool { return f.Type == string(realtime.KindGameStateUpdate) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"reconnect"}`)))
}

func TestLobbyWebSocketRejectsBadAPIKey(t *testing.T) {
	env := newTestEnv(t)
	alice := env.users.add("alice")
	roomID := env.join(t, "room123", alice)

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	_, resp, err := dialLobby(t, ts, lobbyPath(roomID), "wrong", alice)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLobbyWebSocketClosesForNonParticipant(t *testing.T) {
	env := newTestEnv(t)
	env.transport = &loopTransport{channels: make(map[string]*loopChannel)}
	roomID := env.join(t, "room123", env.users.add("alice"))

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	c, _, err := dialLobby(t, ts, lobbyPath(roomID), testAPIKey, env.users.add("mallory"))
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = c.Read(ctx)
	assert.Equal(t, InvalidRoomIDError, websocket.CloseStatus(err))
}
