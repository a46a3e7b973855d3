// internal/database/room.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/gamesite/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxPlayers is the room capacity; Can't Stop seats two to four players.
	MaxPlayers = 4
	// MinPlayers is the fewest participants a game can start with.
	MinPlayers = 2
)

// JoinFailure explains why JoinOrCreate did not admit the caller.
type JoinFailure string

const (
	JoinRoomFull      JoinFailure = "room_full"
	JoinAlreadyInRoom JoinFailure = "already_in_room"
	JoinInvalidState  JoinFailure = "invalid_state"
)

// JoinResult is either a success carrying the room id, or a Failure.
type JoinResult struct {
	RoomID  uuid.UUID
	Created bool
	Failure JoinFailure
}

// OK reports whether the caller is now (or already was) a participant.
func (r JoinResult) OK() bool {
	return r.Failure == ""
}

// LeaveResult describes the side effects of a participant leaving.
type LeaveResult struct {
	RoomDeleted bool
	// NewHostID is set when the leaving user was the host and someone remained.
	NewHostID uuid.UUID
}

// JoinOrCreate creates the room for code with userID as host-participant, or
// adds userID to the existing room with that code. Rejoining is a no-op that
// returns the same room id. Two concurrent creators are serialized by the
// UNIQUE constraint on rooms.code: the loser's insert does nothing and it
// joins the winner's room instead.
func (s *Store) JoinOrCreate(ctx context.Context, code string, userID uuid.UUID) (JoinResult, error) {
	var res JoinResult
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		res = JoinResult{}

		var otherRoom uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT r.id
			FROM room_participants p
			JOIN rooms r ON r.id = p.room_id
			WHERE p.user_id = $1
			  AND r.status IN ('waiting', 'playing')
			  AND r.code <> $2
			LIMIT 1`, userID, code).Scan(&otherRoom)
		if err == nil {
			res.Failure = JoinAlreadyInRoom
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("check active membership: %w", err)
		}

		var created uuid.UUID
		err = tx.QueryRow(ctx, `
			INSERT INTO rooms (id, code, host_user_id, status)
			VALUES ($1, $2, $3, 'waiting')
			ON CONFLICT (code) DO NOTHING
			RETURNING id`, uuid.New(), code, userID).Scan(&created)
		switch {
		case err == nil:
			if err := insertParticipant(ctx, tx, created, userID); err != nil {
				return err
			}
			res.RoomID, res.Created = created, true
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("create room: %w", err)
		}

		var status models.RoomStatus
		err = tx.QueryRow(ctx, `SELECT id, status FROM rooms WHERE code = $1 FOR UPDATE`, code).Scan(&res.RoomID, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRoomNotFound
		}
		if err != nil {
			return fmt.Errorf("lock room: %w", err)
		}

		var (
			count   int
			present bool
		)
		err = tx.QueryRow(ctx, `
			SELECT count(*), coalesce(bool_or(user_id = $2), false)
			FROM room_participants
			WHERE room_id = $1`, res.RoomID, userID).Scan(&count, &present)
		if err != nil {
			return fmt.Errorf("count participants: %w", err)
		}

		switch {
		case present:
			return nil
		case status == models.RoomPlaying:
			res.Failure = JoinInvalidState
			return nil
		case count >= MaxPlayers:
			res.Failure = JoinRoomFull
			return nil
		}
		return insertParticipant(ctx, tx, res.RoomID, userID)
	})
	if err != nil {
		return JoinResult{}, err
	}
	return res, nil
}

func insertParticipant(ctx context.Context, tx pgx.Tx, roomID, userID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO room_participants (room_id, user_id, is_ready)
		VALUES ($1, $2, false)
		ON CONFLICT (room_id, user_id) DO NOTHING`, roomID, userID)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// GetRoom fetches a room row by id.
func (s *Store) GetRoom(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `
		SELECT id, code, host_user_id, status, created_at, updated_at
		FROM rooms
		WHERE id = $1`, roomID))
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	err := row.Scan(&r.ID, &r.Code, &r.HostUserID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRoomSnapshot loads the room, its participants (in join order) and its
// leaderboard. The three reads run concurrently on the pool.
func (s *Store) GetRoomSnapshot(ctx context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error) {
	var (
		room         *models.Room
		participants []models.Participant
		stats        []models.WinStat
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		room, err = s.GetRoom(gctx, roomID)
		return err
	})
	g.Go(func() error {
		var err error
		participants, err = s.ListParticipants(gctx, roomID)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.ListWinStats(gctx, roomID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.RoomSnapshot{
		Room:         *room,
		Participants: participants,
		WinStats:     stats,
	}, nil
}

// ListParticipants returns a room's participants in join order.
func (s *Store) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.room_id, p.user_id, u.username, u.avatar_url, p.is_ready, p.joined_at
		FROM room_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.room_id = $1
		ORDER BY p.joined_at, p.user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.Username, &p.AvatarURL, &p.IsReady, &p.JoinedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// ListWinStats returns a room's leaderboard, most wins first.
func (s *Store) ListWinStats(ctx context.Context, roomID uuid.UUID) ([]models.WinStat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT w.room_id, w.user_id, u.username, w.wins
		FROM room_win_stats w
		JOIN users u ON u.id = w.user_id
		WHERE w.room_id = $1
		ORDER BY w.wins DESC, u.username`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list win stats: %w", err)
	}
	defer rows.Close()

	stats := []models.WinStat{}
	for rows.Next() {
		var w models.WinStat
		if err := rows.Scan(&w.RoomID, &w.UserID, &w.Username, &w.Wins); err != nil {
			return nil, err
		}
		stats = append(stats, w)
	}
	return stats, rows.Err()
}

// ActiveRoomForUser returns the waiting or playing room userID belongs to, or
// nil if there is none.
func (s *Store) ActiveRoomForUser(ctx context.Context, userID uuid.UUID) (*models.Room, error) {
	room, err := scanRoom(s.pool.QueryRow(ctx, `
		SELECT r.id, r.code, r.host_user_id, r.status, r.created_at, r.updated_at
		FROM rooms r
		JOIN room_participants p ON p.room_id = r.id
		WHERE p.user_id = $1 AND r.status IN ('waiting', 'playing')
		ORDER BY p.joined_at DESC
		LIMIT 1`, userID))
	if errors.Is(err, ErrRoomNotFound) {
		return nil, nil
	}
	return room, err
}

// ToggleReady flips userID's ready flag and returns the new value.
func (s *Store) ToggleReady(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var ready bool
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE room_participants
			SET is_ready = NOT is_ready
			WHERE room_id = $1 AND user_id = $2
			RETURNING is_ready`, roomID, userID).Scan(&ready)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotParticipant
		}
		return err
	})
	return ready, err
}

// lockRoom selects the room row FOR UPDATE so concurrent host actions serialize.
func lockRoom(ctx context.Context, tx pgx.Tx, roomID uuid.UUID) (*models.Room, error) {
	return scanRoom(tx.QueryRow(ctx, `
		SELECT id, code, host_user_id, status, created_at, updated_at
		FROM rooms
		WHERE id = $1
		FOR UPDATE`, roomID))
}

// Leave removes userID from the room. If the host leaves, the earliest remaining
// participant becomes host; if nobody remains, the room is deleted.
func (s *Store) Leave(ctx context.Context, roomID, userID uuid.UUID) (LeaveResult, error) {
	var res LeaveResult
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		res = LeaveResult{}
		room, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`, roomID, userID)
		if err != nil {
			return fmt.Errorf("delete participant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotParticipant
		}

		var next uuid.UUID
		err = tx.QueryRow(ctx, `
			SELECT user_id FROM room_participants
			WHERE room_id = $1
			ORDER BY joined_at, user_id
			LIMIT 1`, roomID).Scan(&next)
		if errors.Is(err, pgx.ErrNoRows) {
			if _, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
				return fmt.Errorf("delete empty room: %w", err)
			}
			res.RoomDeleted = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("find next host: %w", err)
		}

		if room.HostUserID == userID {
			if _, err := tx.Exec(ctx, `UPDATE rooms SET host_user_id = $2, updated_at = now() WHERE id = $1`, roomID, next); err != nil {
				return fmt.Errorf("transfer host: %w", err)
			}
			res.NewHostID = next
		}
		return nil
	})
	return res, err
}

// Kick removes targetID from the room on behalf of hostID.
func (s *Store) Kick(ctx context.Context, roomID, hostID, targetID uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		room, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room.HostUserID != hostID {
			return ErrNotHost
		}
		if targetID == hostID {
			return ErrCannotKickSelf
		}

		tag, err := tx.Exec(ctx, `DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`, roomID, targetID)
		if err != nil {
			return fmt.Errorf("kick participant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotParticipant
		}
		return nil
	})
}

// StartGame moves the room to playing. Only the host may start, and only once
// at least MinPlayers participants are all ready.
func (s *Store) StartGame(ctx context.Context, roomID, userID uuid.UUID) (*models.Room, error) {
	var started *models.Room
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		room, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room.HostUserID != userID {
			return ErrNotHost
		}
		if room.Status == models.RoomPlaying {
			return ErrInvalidState
		}

		var (
			count    int
			allReady bool
		)
		err = tx.QueryRow(ctx, `
			SELECT count(*), coalesce(bool_and(is_ready), false)
			FROM room_participants
			WHERE room_id = $1`, roomID).Scan(&count, &allReady)
		if err != nil {
			return fmt.Errorf("check readiness: %w", err)
		}
		if count < MinPlayers {
			return ErrNotEnoughPlayers
		}
		if !allReady {
			return ErrPlayersNotReady
		}

		started, err = scanRoom(tx.QueryRow(ctx, `
			UPDATE rooms SET status = 'playing', updated_at = now()
			WHERE id = $1
			RETURNING id, code, host_user_id, status, created_at, updated_at`, roomID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return started, nil
}

// FinishGame records winnerID's win, clears every ready flag and marks the
// room finished so the lobby can start another game.
func (s *Store) FinishGame(ctx context.Context, roomID, hostID, winnerID uuid.UUID) (*models.Room, error) {
	var finished *models.Room
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		room, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room.HostUserID != hostID {
			return ErrNotHost
		}
		if room.Status != models.RoomPlaying {
			return ErrInvalidState
		}

		var exists bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM room_participants WHERE room_id = $1 AND user_id = $2)`,
			roomID, winnerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check winner: %w", err)
		}
		if !exists {
			return ErrNotParticipant
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO room_win_stats (room_id, user_id, wins)
			VALUES ($1, $2, 1)
			ON CONFLICT (room_id, user_id) DO UPDATE SET wins = room_win_stats.wins + 1`,
			roomID, winnerID); err != nil {
			return fmt.Errorf("record win: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE room_participants SET is_ready = false WHERE room_id = $1`, roomID); err != nil {
			return fmt.Errorf("reset ready flags: %w", err)
		}

		finished, err = scanRoom(tx.QueryRow(ctx, `
			UPDATE rooms SET status = 'finished', updated_at = now()
			WHERE id = $1
			RETURNING id, code, host_user_id, status, created_at, updated_at`, roomID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return finished, nil
}
