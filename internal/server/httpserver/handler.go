package httpserver

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/onepass/internal/common"
	"github.com/dmitrijs2005/onepass/internal/server/mailer"
	"github.com/go-chi/chi/v5"
)

const (
	msgHello           = "Hello, world!"
	msgRegistered      = "A link has been sent to your mail for verification."
	msgVerified        = "Email verified!"
	msgAlreadyVerified = "Email already verified"
	msgResetLinkSent   = "If the account exists, a link has been sent to your mail."
	msgPasswordReset   = "Password has been reset."
)

func (s *HTTPServer) hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgHello})
}

func (s *HTTPServer) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *HTTPServer) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "Registration request")

	if _, err := s.users.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: msgRegistered})
}

func (s *HTTPServer) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (s *HTTPServer) verify(w http.ResponseWriter, r *http.Request) {
	res, err := s.users.Verify(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		// an unusable link is reported as not found, an expired one as 401
		if errors.Is(err, common.ErrInvalidToken) && !errors.Is(err, common.ErrExpiredToken) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Detail: "Invalid token!"})
			return
		}
		s.writeError(w, r, err)
		return
	}

	msg := msgVerified
	if res.AlreadyVerified {
		msg = msgAlreadyVerified
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

func (s *HTTPServer) resendVerify(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if err := s.validator.Var(email, "required,email"); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.users.ResendVerification(r.Context(), email); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: msgRegistered})
}

func (s *HTTPServer) refresh(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.users.RefreshToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (s *HTTPServer) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.users.ForgotPassword(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: msgResetLinkSent})
}

func (s *HTTPServer) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.users.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: msgPasswordReset})
}

func (s *HTTPServer) me(w http.ResponseWriter, r *http.Request) {
	token, _ := accessTokenFromContext(r.Context())

	user, err := s.users.Me(r.Context(), token)
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

var previewData = map[string]any{"name": "Theo", "link": "https://samplelink.com"}

func (s *HTTPServer) emailPreview(w http.ResponseWriter, r *http.Request) {
	body, err := s.previews.Render(mailer.Message{Template: chi.URLParam(r, "template"), Data: previewData})
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Detail: "Not Found"})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
