package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/gamesite/internal/auth"
	"github.com/jason-s-yu/gamesite/internal/models"
)

// CreateUser hashes user.Password and inserts the row. On success user.ID,
// user.Password (now the hash) and user.CreatedAt are filled in.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	hash, err := auth.HashPassword(user.Password, auth.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (id, email, password, username, avatar_url)
	      VALUES ($1, $2, $3, $4, $5)
	      RETURNING created_at`

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q,
			user.ID, user.Email, user.Password, user.Username, user.AvatarURL,
		).Scan(&user.CreatedAt)
	})
	if isUniqueViolation(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

const selectUser = `
	SELECT id, email, password, username, avatar_url, created_at
	FROM users
`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.AvatarURL, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail looks a user up by login email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, selectUser+`WHERE email = $1`, email))
}

// GetUserByID looks a user up by id. The password hash is cleared.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, selectUser+`WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	u.Password = ""
	return u, nil
}

// AuthenticateUser checks email/password and returns the user on success.
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
func (s *Store) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	match, err := auth.CheckPassword(password, user.Password)
	if err != nil {
		return nil, fmt.Errorf("stored password hash for %s: %w", user.ID, err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}
	user.Password = ""
	return user, nil
}
