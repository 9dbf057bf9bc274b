package server

import (
	"net/http"

	"chatbuddy/internal/util"
	"chatbuddy/pkg/domain"
	"chatbuddy/pkg/session"
)

type sessionHandler func(http.ResponseWriter, *http.Request, domain.Identity)

// requireSession admits a request only when it carries a session cookie with
// a valid transport signature wrapping a valid identity token.
func (s *Server) requireSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := s.cookies.Unbind(r)
		if !ok {
			s.audit(r, "session", "token_missing")
			writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Token Not Received"})
			return
		}
		id, err := s.tokens.Verify(token)
		if err != nil {
			s.audit(r, "session", "token_invalid", "err", err)
			writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Token Expired"})
			return
		}
		ctx := session.ContextWithIdentity(r.Context(), id)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", id.SubjectID))
		next(w, r.WithContext(ctx), id)
	})
}
