package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a row in the users table. Password holds the argon2id hash once stored.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"password,omitempty"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}
