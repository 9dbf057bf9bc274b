package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"chatbuddy/internal/app"
	"chatbuddy/internal/util"
	"chatbuddy/pkg/session"
)

const (
	defaultAPIPrefix = "/api/v1"
	maxBodyBytes     = 1 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App     *app.App
	Tokens  *session.TokenService
	Cookies *session.CookieTransport

	// APIPrefix is prepended to every route except /healthz.
	APIPrefix string
	// LegacyErrorBodies answers unexpected failures with 200 and plain-text
	// rejections, matching clients written against the first deployment.
	LegacyErrorBodies bool
	TrustedProxies    *util.TrustedProxies
	// Ready reports dependency health for /healthz. Optional.
	Ready func(ctx context.Context) error
}

// Server exposes the account and chat HTTP API.
type Server struct {
	app     *app.App
	tokens  *session.TokenService
	cookies *session.CookieTransport
	prefix  string
	legacy  bool
	proxies *util.TrustedProxies
	ready   func(ctx context.Context) error
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil || cfg.Tokens == nil || cfg.Cookies == nil {
		return nil, errors.New("server requires app, token service and cookie transport")
	}
	prefix := "/" + strings.Trim(strings.TrimSpace(cfg.APIPrefix), "/")
	if prefix == "/" {
		prefix = defaultAPIPrefix
	}
	s := &Server{
		app:     cfg.App,
		tokens:  cfg.Tokens,
		cookies: cfg.Cookies,
		prefix:  prefix,
		legacy:  cfg.LegacyErrorBodies,
		proxies: cfg.TrustedProxies,
		ready:   cfg.Ready,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// user
	s.handle("GET", "/user/{$}", http.HandlerFunc(s.handleListUsers))
	s.handle("POST", "/user/signup", http.HandlerFunc(s.handleSignup))
	s.handle("POST", "/user/login", http.HandlerFunc(s.handleLogin))
	s.handle("GET", "/user/auth-status", s.requireSession(s.handleAuthStatus))
	s.handle("GET", "/user/logout", s.requireSession(s.handleLogout))

	// chat
	s.handle("POST", "/chat/user/new", s.requireSession(s.handleNewChat))
	s.handle("GET", "/chat/allChats", s.requireSession(s.handleAllChats))
	s.handle("DELETE", "/chat/delete", s.requireSession(s.handleDeleteChats))
}

func (s *Server) handle(method, path string, h http.Handler) {
	s.mux.Handle(method+" "+s.prefix+path, h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			util.LoggerFromContext(r.Context()).Warn("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

type fieldError struct {
	Path string `json:"path"`
	Msg  string `json:"msg"`
}

type validationResponse struct {
	Message string       `json:"message"`
	Errors  []fieldError `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeMessage sends a short rejection. Legacy clients expect plain text.
func (s *Server) writeMessage(w http.ResponseWriter, status int, msg string) {
	if s.legacy {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, msg)
		return
	}
	writeJSON(w, status, messageResponse{Message: msg})
}

// writeUnexpected reports a failure the handler has no specific answer for.
func (s *Server) writeUnexpected(w http.ResponseWriter, r *http.Request, err error) {
	util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	status := http.StatusInternalServerError
	if s.legacy {
		status = http.StatusOK
	}
	writeJSON(w, status, errorResponse{Message: "ERROR", Cause: err.Error()})
}

func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
		Message: "validation failed",
		Errors:  []fieldError{{Path: field, Msg: msg}},
	})
}

// writeValidationError maps app input errors to 422; it reports false for
// anything else.
func writeValidationError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, app.ErrNameRequired):
		writeValidation(w, "name", "Name is required")
	case errors.Is(err, app.ErrEmailAndPasswordRequired):
		writeValidation(w, "email", "Email and password are required")
	case errors.Is(err, app.ErrInvalidEmail):
		writeValidation(w, "email", "Email is required")
	case errors.Is(err, app.ErrMessageRequired):
		writeValidation(w, "message", "Message is required")
	default:
		return false
	}
	return true
}

// writeOwnershipError answers lookups that fail for the session's subject.
func (s *Server) writeOwnershipError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, app.ErrUserNotRegistered):
		s.audit(r, "ownership", "user_missing")
		s.writeMessage(w, http.StatusUnauthorized, "User not registered or Token malfunctioned")
	case errors.Is(err, app.ErrPermissionDenied):
		s.audit(r, "ownership", "mismatch")
		s.writeMessage(w, http.StatusUnauthorized, "Permissions didn't match")
	default:
		return false
	}
	return true
}

func logger(r *http.Request) *slog.Logger {
	return util.LoggerFromContext(r.Context())
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.proxies),
	}
	if id, ok := session.IdentityFromContext(r.Context()); ok {
		logAttrs = append(logAttrs, "user_id", id.SubjectID)
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}
