// internal/lobby/service.go
package lobby

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gamesite/internal/database"
	"github.com/jason-s-yu/gamesite/internal/models"
	"github.com/jason-s-yu/gamesite/internal/realtime"
	"github.com/sirupsen/logrus"
)

// Repository is the subset of database.Store the lobby needs.
type Repository interface {
	JoinOrCreate(ctx context.Context, code string, userID uuid.UUID) (database.JoinResult, error)
	GetRoomSnapshot(ctx context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error)
	ToggleReady(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	Leave(ctx context.Context, roomID, userID uuid.UUID) (database.LeaveResult, error)
	Kick(ctx context.Context, roomID, hostID, targetID uuid.UUID) error
	StartGame(ctx context.Context, roomID, userID uuid.UUID) (*models.Room, error)
	FinishGame(ctx context.Context, roomID, hostID, winnerID uuid.UUID) (*models.Room, error)
	ActiveRoomForUser(ctx context.Context, userID uuid.UUID) (*models.Room, error)
}

// Publisher broadcasts a message on a room's realtime channels.
type Publisher interface {
	Publish(ctx context.Context, roomID uuid.UUID, m realtime.Message) error
}

// Service applies room mutations and broadcasts the resulting state to every
// subscriber of the room. Broadcast failures are logged and never undo a
// committed mutation; clients resync from the next page load.
type Service struct {
	repo Repository
	pub  Publisher
	log  *logrus.Logger
}

func NewService(repo Repository, pub Publisher, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{repo: repo, pub: pub, log: logger}
}

// Join validates code and joins or creates its room. A validation failure is
// returned as a *CodeError and the repository is not called.
func (s *Service) Join(ctx context.Context, rawCode string, userID uuid.UUID) (database.JoinResult, error) {
	code, err := NormalizeRoomCode(rawCode)
	if err != nil {
		return database.JoinResult{}, err
	}

	res, err := s.repo.JoinOrCreate(ctx, code, userID)
	if err != nil {
		return database.JoinResult{}, err
	}
	if res.OK() {
		s.log.WithFields(logrus.Fields{
			"room_id": res.RoomID,
			"user_id": userID,
			"created": res.Created,
		}).Info("joined room")
		s.broadcastParticipants(ctx, res.RoomID)
	}
	return res, nil
}

// Snapshot loads the room for rendering.
func (s *Service) Snapshot(ctx context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error) {
	return s.repo.GetRoomSnapshot(ctx, roomID)
}

// ActiveRoom returns the user's waiting or playing room, or nil.
func (s *Service) ActiveRoom(ctx context.Context, userID uuid.UUID) (*models.Room, error) {
	return s.repo.ActiveRoomForUser(ctx, userID)
}

func (s *Service) ToggleReady(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	ready, err := s.repo.ToggleReady(ctx, roomID, userID)
	if err != nil {
		return false, err
	}
	s.broadcastParticipants(ctx, roomID)
	return ready, nil
}

// Leave removes the user. Host transfer is announced with a room update.
func (s *Service) Leave(ctx context.Context, roomID, userID uuid.UUID) error {
	res, err := s.repo.Leave(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if res.RoomDeleted {
		s.log.WithField("room_id", roomID).Info("room deleted after last participant left")
		return nil
	}
	if res.NewHostID != uuid.Nil {
		s.log.WithFields(logrus.Fields{
			"room_id":  roomID,
			"new_host": res.NewHostID,
		}).Info("host transferred")
		s.broadcastSnapshot(ctx, roomID, true)
		return nil
	}
	s.broadcastParticipants(ctx, roomID)
	return nil
}

func (s *Service) Kick(ctx context.Context, roomID, hostID, targetID uuid.UUID) error {
	if err := s.repo.Kick(ctx, roomID, hostID, targetID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"target":  targetID,
	}).Info("participant kicked")
	s.broadcastParticipants(ctx, roomID)
	return nil
}

// StartGame moves the room to playing and tells both channels.
func (s *Service) StartGame(ctx context.Context, roomID, userID uuid.UUID) error {
	room, err := s.repo.StartGame(ctx, roomID, userID)
	if err != nil {
		return err
	}
	s.log.WithField("room_id", roomID).Info("game started")
	s.publish(ctx, roomID, realtime.RoomUpdate{Room: *room})
	s.publish(ctx, roomID, realtime.GameStateUpdate{Status: room.Status})
	return nil
}

// FinishGame records the winner and returns the room to the lobby.
func (s *Service) FinishGame(ctx context.Context, roomID, hostID, winnerID uuid.UUID) error {
	room, err := s.repo.FinishGame(ctx, roomID, hostID, winnerID)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"winner":  winnerID,
	}).Info("game finished")

	snap, err := s.repo.GetRoomSnapshot(ctx, roomID)
	if err != nil {
		s.log.WithError(err).WithField("room_id", roomID).Warn("failed to load room after finishing game")
		s.publish(ctx, roomID, realtime.RoomUpdate{Room: *room})
		s.publish(ctx, roomID, realtime.GameEnded{WinnerID: winnerID, WinStats: []models.WinStat{}})
		return nil
	}
	s.publish(ctx, roomID, realtime.GameEnded{WinnerID: winnerID, WinStats: snap.WinStats})
	s.publish(ctx, roomID, realtime.RoomUpdate{Room: snap.Room})
	s.publish(ctx, roomID, realtime.ParticipantUpdate{Participants: snap.Participants})
	s.publish(ctx, roomID, realtime.WinStatsUpdate{WinStats: snap.WinStats})
	return nil
}

func (s *Service) broadcastParticipants(ctx context.Context, roomID uuid.UUID) {
	s.broadcastSnapshot(ctx, roomID, false)
}

func (s *Service) broadcastSnapshot(ctx context.Context, roomID uuid.UUID, withRoom bool) {
	snap, err := s.repo.GetRoomSnapshot(ctx, roomID)
	if err != nil {
		s.log.WithError(err).WithField("room_id", roomID).Warn("failed to load room for broadcast")
		return
	}
	if withRoom {
		s.publish(ctx, roomID, realtime.RoomUpdate{Room: snap.Room})
	}
	s.publish(ctx, roomID, realtime.ParticipantUpdate{Participants: snap.Participants})
}

func (s *Service) publish(ctx context.Context, roomID uuid.UUID, m realtime.Message) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, roomID, m); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"room_id": roomID,
			"kind":    m.Kind(),
		}).Warn("broadcast failed")
	}
}
