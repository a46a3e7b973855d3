// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the lobby realtime bridge.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client connected without the lobby subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Session cookie missing, invalid or expired.
	InvalidRoomIDError    websocket.StatusCode = 3003 // Room does not exist or the user is not in it.
	RealtimeFailedError   websocket.StatusCode = 3004 // The realtime client could not be started.
)
