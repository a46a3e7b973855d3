// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus is the lifecycle state of a Can't Stop room.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// Active reports whether the room still holds its participants (waiting or playing).
func (s RoomStatus) Active() bool {
	return s == RoomWaiting || s == RoomPlaying
}

// Room represents a row in the rooms table. Code is the human-chosen identifier
// players type to join; ID is the internal key used in URLs and channel names.
type Room struct {
	ID         uuid.UUID  `json:"id"`
	Code       string     `json:"code"`
	HostUserID uuid.UUID  `json:"host_user_id"`
	Status     RoomStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Participant is a user's membership in a room. A user appears at most once per room.
type Participant struct {
	RoomID    uuid.UUID `json:"room_id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	IsReady   bool      `json:"is_ready"`
	JoinedAt  time.Time `json:"joined_at"`
}

// WinStat is the cumulative number of games a user has won in a room.
type WinStat struct {
	RoomID   uuid.UUID `json:"room_id"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Wins     int       `json:"wins"`
}

// RoomSnapshot is everything the lobby page needs to render a room.
type RoomSnapshot struct {
	Room         Room          `json:"room"`
	Participants []Participant `json:"participants"`
	WinStats     []WinStat     `json:"win_stats"`
}

// Participant returns the membership row for userID, if present.
func (s *RoomSnapshot) Participant(userID uuid.UUID) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// IsHost reports whether userID is the room's host.
func (s *RoomSnapshot) IsHost(userID uuid.UUID) bool {
	return s.Room.HostUserID == userID
}

// AllReady reports whether every participant has flagged ready.
func (s *RoomSnapshot) AllReady() bool {
	if len(s.Participants) == 0 {
		return false
	}
	for _, p := range s.Participants {
		if !p.IsReady {
			return false
		}
	}
	return true
}
