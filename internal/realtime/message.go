package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gamesite/internal/models"
)

// Kind names a broadcast message type.
type Kind string

const (
	KindParticipantUpdate Kind = "participant_update"
	KindRoomUpdate        Kind = "room_update"
	KindWinStatsUpdate    Kind = "win_stats_update"
	KindGameStateUpdate   Kind = "game_state_update"
	KindGameEnded         Kind = "game_ended"
)

// ErrUnknownKind is returned by Decode for a message type outside the closed set.
var ErrUnknownKind = errors.New("unknown message kind")

// Message is one of ParticipantUpdate, RoomUpdate, WinStatsUpdate,
// GameStateUpdate or GameEnded.
type Message interface {
	Kind() Kind
	isMessage()
}

// ParticipantUpdate carries the full participant list after a join, leave, kick or ready toggle.
type ParticipantUpdate struct {
	Participants []models.Participant `json:"participants"`
}

// RoomUpdate carries the room row after a status or host change.
type RoomUpdate struct {
	Room models.Room `json:"room"`
}

// WinStatsUpdate carries the room leaderboard.
type WinStatsUpdate struct {
	WinStats []models.WinStat `json:"win_stats"`
}

// GameStateUpdate carries the opaque game state; the board itself is owned by the game page.
type GameStateUpdate struct {
	Status models.RoomStatus `json:"status"`
	State  json.RawMessage   `json:"state,omitempty"`
}

// GameEnded announces the winner and the updated leaderboard.
type GameEnded struct {
	WinnerID uuid.UUID        `json:"winner_id"`
	WinStats []models.WinStat `json:"win_stats"`
}

func (ParticipantUpdate) Kind() Kind { return KindParticipantUpdate }
func (RoomUpdate) Kind() Kind        { return KindRoomUpdate }
func (WinStatsUpdate) Kind() Kind    { return KindWinStatsUpdate }
func (GameStateUpdate) Kind() Kind   { return KindGameStateUpdate }
func (GameEnded) Kind() Kind         { return KindGameEnded }

func (ParticipantUpdate) isMessage() {}
func (RoomUpdate) isMessage()        {}
func (WinStatsUpdate) isMessage()    {}
func (GameStateUpdate) isMessage()   {}
func (GameEnded) isMessage()         {}

// envelope is the wire form of a Message.
type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps m in its {"type", "payload"} envelope.
func Encode(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", m.Kind(), err)
	}
	return json.Marshal(envelope{Type: m.Kind(), Payload: payload})
}

// Decode parses an envelope into its concrete message. Missing collections
// decode as empty slices; unknown kinds return ErrUnknownKind.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var (
		m   Message
		err error
	)
	switch env.Type {
	case KindParticipantUpdate:
		var p ParticipantUpdate
		err = unmarshalPayload(env.Payload, &p)
		if p.Participants == nil {
			p.Participants = []models.Participant{}
		}
		m = p
	case KindRoomUpdate:
		var p RoomUpdate
		err = unmarshalPayload(env.Payload, &p)
		m = p
	case KindWinStatsUpdate:
		var p WinStatsUpdate
		err = unmarshalPayload(env.Payload, &p)
		if p.WinStats == nil {
			p.WinStats = []models.WinStat{}
		}
		m = p
	case KindGameStateUpdate:
		var p GameStateUpdate
		err = unmarshalPayload(env.Payload, &p)
		m = p
	case KindGameEnded:
		var p GameEnded
		err = unmarshalPayload(env.Payload, &p)
		if p.WinStats == nil {
			p.WinStats = []models.WinStat{}
		}
		m = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return m, nil
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// channelFor returns which of a room's two channels carries kind.
func channelFor(k Kind) channelKind {
	switch k {
	case KindGameStateUpdate, KindGameEnded:
		return gameChannel
	default:
		return roomChannel
	}
}
