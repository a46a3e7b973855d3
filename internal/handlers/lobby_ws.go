// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/gamesite/internal/database"
	"github.com/jason-s-yu/gamesite/internal/middleware"
	"github.com/jason-s-yu/gamesite/internal/realtime"
	"github.com/sirupsen/logrus"
)

const (
	wsSubprotocol   = "lobby"
	wsOutboxSize    = 32
	wsPingInterval  = 30 * time.Second
	wsWriteTimeout  = 5 * time.Second
	frameConnStatus = "connection_status"
)

// statusFrame is pushed to the browser after every connection state change.
type statusFrame struct {
	Type string `json:"type"`
	realtime.ConnectionState
}

// browserFrame is a control message from the page.
type browserFrame struct {
	Type    string `json:"type"`
	Visible bool   `json:"visible"`
}

// bridgeConn is one browser tab's websocket and the realtime client serving it.
type bridgeConn struct {
	userID uuid.UUID
	roomID uuid.UUID
	out    chan []byte
	log    *logrus.Entry
}

// write queues data without blocking. A full outbox drops the frame; the page
// reloads on the next event and catches up from the server-rendered state.
func (b *bridgeConn) write(data []byte) {
	select {
	case b.out <- data:
	default:
		b.log.Warn("websocket outbox full, dropping frame")
	}
}

func (b *bridgeConn) writeMessage(m realtime.Message) {
	data, err := realtime.Encode(m)
	if err != nil {
		b.log.WithError(err).Warn("failed to encode realtime message")
		return
	}
	b.write(data)
}

// LobbyWSHandler bridges one browser tab to the room's realtime channels. The
// tab presents the public API key, the session cookie and the lobby
// subprotocol. Closing the socket closes the realtime client.
func (s *Server) LobbyWSHandler(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("apikey")
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.publicAPIKey)) != 1 {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
		return
	}
	roomID, valid := roomIDParam(r)
	if !valid {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{wsSubprotocol},
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.log.WithError(err).Warn("websocket accept error")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != wsSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
		return
	}

	user := s.currentUser(r)
	if user == nil {
		c.Close(InvalidAuthTokenError, "not logged in")
		return
	}
	snap, err := s.rooms.Snapshot(r.Context(), roomID)
	if err != nil {
		if !errors.Is(err, database.ErrRoomNotFound) {
			s.log.WithError(err).WithField("room_id", roomID).Error("failed to load room for websocket")
		}
		c.Close(InvalidRoomIDError, "room does not exist")
		return
	}
	if _, member := snap.Participant(user.ID); !member {
		c.Close(InvalidRoomIDError, "not a participant of this room")
		return
	}

	fields := logrus.Fields{"room_id": roomID, "user_id": user.ID}
	middleware.LogWebSocketConnect(s.log, r.RemoteAddr, r.URL.Path, fields)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := &bridgeConn{
		userID: user.ID,
		roomID: roomID,
		out:    make(chan []byte, wsOutboxSize),
		log:    s.log.WithFields(fields),
	}

	client := realtime.NewClient(ctx, roomID, s.newTransport(), realtime.Options{
		Policy: s.policy,
		Logger: s.log,
		OnStateChange: func(st realtime.ConnectionState) {
			data, err := json.Marshal(statusFrame{Type: frameConnStatus, ConnectionState: st})
			if err != nil {
				return
			}
			conn.write(data)
		},
	})
	defer client.Close()

	err = client.SubscribeToRoom(realtime.RoomHandlers{
		OnParticipants: func(m realtime.ParticipantUpdate) { conn.writeMessage(m) },
		OnRoom:         func(m realtime.RoomUpdate) { conn.writeMessage(m) },
		OnWinStats:     func(m realtime.WinStatsUpdate) { conn.writeMessage(m) },
	})
	if err == nil {
		err = client.SubscribeToGame(realtime.GameHandlers{
			OnGameState: func(m realtime.GameStateUpdate) { conn.writeMessage(m) },
			OnGameEnded: func(m realtime.GameEnded) { conn.writeMessage(m) },
		})
	}
	if err != nil {
		// The failed state frame is already queued; flush it before closing.
		conn.log.WithError(err).Warn("realtime subscribe failed")
		flushOutbox(ctx, c, conn)
		c.Close(RealtimeFailedError, "realtime unavailable")
		return
	}

	go bridgeWritePump(ctx, c, conn)
	err = bridgeReadPump(ctx, c, client, conn)

	middleware.LogWebSocketDisconnect(s.log, r.RemoteAddr, r.URL.Path, fields, err)
}

// bridgeReadPump handles control frames from the page until the socket closes.
// A normal closure returns nil.
func bridgeReadPump(ctx context.Context, c *websocket.Conn, client *realtime.Client, conn *bridgeConn) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var frame browserFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			conn.log.WithError(err).Debug("invalid frame from browser")
			continue
		}

		switch frame.Type {
		case "visibility":
			err = client.HandleVisibilityChange(frame.Visible)
		case "reconnect":
			err = client.ForceReconnect()
		default:
			conn.log.WithField("type", frame.Type).Debug("unknown frame type from browser")
			continue
		}
		if errors.Is(err, realtime.ErrDestroyed) {
			return nil
		}
		if err != nil {
			conn.log.WithError(err).Warn("realtime control frame failed")
		}
	}
}

// bridgeWritePump forwards queued frames and pings the browser every 30s.
func bridgeWritePump(ctx context.Context, c *websocket.Conn, conn *bridgeConn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-conn.out:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				conn.log.WithError(err).Debug("failed to write to websocket")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				conn.log.WithError(err).Debug("websocket ping failed")
				return
			}
		}
	}
}

// flushOutbox writes whatever is queued without waiting for more.
func flushOutbox(ctx context.Context, c *websocket.Conn, conn *bridgeConn) {
	for {
		select {
		case data := <-conn.out:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		default:
			return
		}
	}
}
