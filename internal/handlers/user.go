package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/jason-s-yu/gamesite/internal/auth"
	"github.com/jason-s-yu/gamesite/internal/database"
	"github.com/jason-s-yu/gamesite/internal/models"
	"github.com/sirupsen/logrus"
)

const minPasswordLength = 8

// LoginPage renders the login form. Logged-in users go straight to next.
func (s *Server) LoginPage(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"), "/games")
	if s.currentUser(r) != nil {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	page := s.page("Log in", nil)
	page.Next = next
	s.render(w, http.StatusOK, "login", page)
}

// LoginHandler checks the submitted email and password and, on success, sets
// the auth_token cookie and redirects to next.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	next := safeNext(r.PostFormValue("next"), "/games")

	page := s.page("Log in", nil)
	page.Next = next
	page.Email = email

	user, err := s.users.AuthenticateUser(r.Context(), email, password)
	if errors.Is(err, database.ErrInvalidCredentials) {
		page.Error = "Invalid email or password"
		s.render(w, http.StatusUnauthorized, "login", page)
		return
	}
	if err != nil {
		s.serverError(w, r, err, "failed to authenticate user", logrus.Fields{"email": email})
		return
	}

	if !s.startSession(w, r, user) {
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// SignupPage renders the account creation form.
func (s *Server) SignupPage(w http.ResponseWriter, r *http.Request) {
	page := s.page("Sign up", s.currentUser(r))
	page.Next = safeNext(r.URL.Query().Get("next"), "/games")
	s.render(w, http.StatusOK, "signup", page)
}

// SignupHandler creates an account and logs it in.
func (s *Server) SignupHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	user := models.User{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	next := safeNext(r.PostFormValue("next"), "/games")

	page := s.page("Sign up", nil)
	page.Next = next
	page.Email = user.Email
	page.Username = user.Username

	if msg := validateSignup(user); msg != "" {
		page.Error = msg
		s.render(w, http.StatusBadRequest, "signup", page)
		return
	}

	err := s.users.CreateUser(r.Context(), &user)
	if errors.Is(err, database.ErrUserExists) {
		page.Error = "That email or username is already taken"
		s.render(w, http.StatusConflict, "signup", page)
		return
	}
	if err != nil {
		s.serverError(w, r, err, "error creating user", logrus.Fields{"email": user.Email})
		return
	}
	s.log.WithField("user_id", user.ID).Info("user created")

	if !s.startSession(w, r, &user) {
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// LogoutHandler clears the session cookie.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *models.User) bool {
	token, err := auth.CreateJWT(user.ID)
	if err != nil {
		s.serverError(w, r, err, "failed to create session token", logrus.Fields{"user_id": user.ID})
		return false
	}
	auth.SetSessionCookie(w, token)
	return true
}

func validateSignup(u models.User) string {
	if _, err := mail.ParseAddress(u.Email); err != nil || u.Email == "" {
		return "Enter a valid email address"
	}
	if n := len(u.Username); n < 3 || n > 32 {
		return "Username must be between 3 and 32 characters"
	}
	if len(u.Password) < minPasswordLength {
		return "Password must be at least 8 characters"
	}
	return ""
}
