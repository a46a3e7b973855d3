package realtime

import (
	"fmt"

	"github.com/google/uuid"
)

// ChannelState is the connection state of one logical channel.
type ChannelState string

const (
	StateDisconnected ChannelState = "disconnected"
	StateConnecting   ChannelState = "connecting"
	StateConnected    ChannelState = "connected"
	StateError        ChannelState = "error"
)

// ConnectionState is the client-local view of both channels. Version increases
// with every change so listeners can discard snapshots that arrive out of order.
type ConnectionState struct {
	Room      ChannelState `json:"room"`
	Game      ChannelState `json:"game"`
	LastError string       `json:"error,omitempty"`
	Version   uint64       `json:"version"`
}

// Connected reports whether both channels are connected.
func (s ConnectionState) Connected() bool {
	return s.Room == StateConnected && s.Game == StateConnected
}

// Phase is the lifecycle phase of a Client.
type Phase int

const (
	PhaseActive Phase = iota
	PhaseDestroyed
)

func (p Phase) String() string {
	if p == PhaseDestroyed {
		return "destroyed"
	}
	return "active"
}

// channelKind indexes the two channels a client owns.
type channelKind int

const (
	roomChannel channelKind = iota
	gameChannel
)

func (k channelKind) String() string {
	if k == gameChannel {
		return "game"
	}
	return "room"
}

// RoomChannel is the broker channel carrying lobby events for roomID.
func RoomChannel(roomID uuid.UUID) string {
	return fmt.Sprintf("room-%s", roomID)
}

// GameChannel is the broker channel carrying in-game events for roomID.
func GameChannel(roomID uuid.UUID) string {
	return fmt.Sprintf("game-%s", roomID)
}
