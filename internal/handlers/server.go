// internal/handlers/server.go
package handlers

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gamesite/internal/database"
	"github.com/jason-s-yu/gamesite/internal/models"
	"github.com/jason-s-yu/gamesite/internal/realtime"
	"github.com/jason-s-yu/gamesite/internal/views"
	"github.com/sirupsen/logrus"
)

// UserStore is the subset of database.Store used for accounts and sessions.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*models.User, error)
}

// RoomService is implemented by *lobby.Service.
type RoomService interface {
	Join(ctx context.Context, rawCode string, userID uuid.UUID) (database.JoinResult, error)
	Snapshot(ctx context.Context, roomID uuid.UUID) (*models.RoomSnapshot, error)
	ActiveRoom(ctx context.Context, userID uuid.UUID) (*models.Room, error)
	ToggleReady(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	Leave(ctx context.Context, roomID, userID uuid.UUID) error
	Kick(ctx context.Context, roomID, hostID, targetID uuid.UUID) error
	StartGame(ctx context.Context, roomID, userID uuid.UUID) error
	FinishGame(ctx context.Context, roomID, hostID, winnerID uuid.UUID) error
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Options carries the collaborators of a Server.
type Options struct {
	Logger       *logrus.Logger
	Views        *views.Renderer
	Users        UserStore
	Rooms        RoomService
	BackendURL   string
	PublicAPIKey string
	// NewTransport returns the realtime transport for one websocket bridge.
	NewTransport func() realtime.Transport
	Policy       realtime.Policy
	HealthChecks map[string]HealthCheck
}

// Server holds the page handlers. Handlers keep no state between requests.
type Server struct {
	log          *logrus.Logger
	views        *views.Renderer
	users        UserStore
	rooms        RoomService
	backendURL   string
	publicAPIKey string
	newTransport func() realtime.Transport
	policy       realtime.Policy
	health       map[string]HealthCheck

	originPatterns []string
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		log:          logger,
		views:        opts.Views,
		users:        opts.Users,
		rooms:        opts.Rooms,
		backendURL:   opts.BackendURL,
		publicAPIKey: opts.PublicAPIKey,
		newTransport: opts.NewTransport,
		policy:       opts.Policy,
		health:       opts.HealthChecks,
	}
	if u, err := url.Parse(opts.BackendURL); err == nil && u.Host != "" {
		s.originPatterns = []string{u.Host}
	}
	return s
}

// page returns the fields shared by every rendered page.
func (s *Server) page(title string, user *models.User) views.Page {
	return views.Page{
		Title:        title,
		User:         user,
		BackendURL:   s.backendURL,
		PublicAPIKey: s.publicAPIKey,
	}
}
