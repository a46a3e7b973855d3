package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotParticipant     = errors.New("user is not a participant of this room")
	ErrNotHost            = errors.New("only the host can do that")
	ErrCannotKickSelf     = errors.New("the host cannot kick themselves")
	ErrInvalidState       = errors.New("room is not in a state that allows this")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrPlayersNotReady    = errors.New("not all players are ready")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("email or username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// isUniqueViolation reports whether err is a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
