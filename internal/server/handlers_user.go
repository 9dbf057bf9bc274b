package server

import (
	"errors"
	"net/http"

	"chatbuddy/internal/app"
	"chatbuddy/pkg/domain"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileResponse struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

type loginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type usersResponse struct {
	Message string        `json:"message"`
	Users   []domain.User `json:"users"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.app.ListUsers(r.Context())
	if err != nil {
		s.writeUnexpected(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usersResponse{Message: "OK", Users: users})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid JSON body"})
		return
	}
	user, token, err := s.app.SignUp(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case writeValidationError(w, err):
		case errors.Is(err, app.ErrEmailAlreadyExists):
			s.audit(r, "signup", "email_taken")
			s.writeMessage(w, http.StatusUnauthorized, "User already registered")
		default:
			s.audit(r, "signup", "error", "err", err)
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "ERROR", Cause: err.Error()})
		}
		return
	}
	if err := s.cookies.Bind(w, token, s.app.SessionTTL()); err != nil {
		s.writeUnexpected(w, r, err)
		return
	}
	s.audit(r, "signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, profileResponse{Message: "OK", Name: user.Name, Email: user.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid JSON body"})
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case writeValidationError(w, err):
		case errors.Is(err, app.ErrUserNotRegistered):
			s.audit(r, "login", "unknown_email")
			s.writeMessage(w, http.StatusUnauthorized, "User not registered")
		case errors.Is(err, app.ErrInvalidCredentials):
			s.audit(r, "login", "bad_password")
			s.writeMessage(w, http.StatusForbidden, "Incorrect Password")
		default:
			s.writeUnexpected(w, r, err)
		}
		return
	}
	if err := s.cookies.Bind(w, token, s.app.SessionTTL()); err != nil {
		s.writeUnexpected(w, r, err)
		return
	}
	s.audit(r, "login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, loginResponse{Message: "Login Successful", Token: token})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	user, err := s.app.CurrentUser(r.Context(), id)
	if err != nil {
		if !s.writeOwnershipError(w, r, err) {
			s.writeUnexpected(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Message: "OK", Name: user.Name, Email: user.Email})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	user, err := s.app.CurrentUser(r.Context(), id)
	if err != nil {
		if !s.writeOwnershipError(w, r, err) {
			s.writeUnexpected(w, r, err)
		}
		return
	}
	s.cookies.Clear(w)
	s.audit(r, "logout", "success")
	writeJSON(w, http.StatusOK, profileResponse{Message: "OK", Name: user.Name, Email: user.Email})
}
