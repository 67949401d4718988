// Package httpserver exposes the account flow over HTTP/JSON.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/onepass/internal/logging"
	"github.com/dmitrijs2005/onepass/internal/server/auth"
	"github.com/dmitrijs2005/onepass/internal/server/mailer"
	"github.com/dmitrijs2005/onepass/internal/server/models"
	"github.com/dmitrijs2005/onepass/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// UserService is the account flow the handlers call into.
type UserService interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*auth.TokenPair, error)
	Verify(ctx context.Context, token string) (*services.VerifyResult, error)
	ResendVerification(ctx context.Context, email string) error
	RefreshToken(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	Me(ctx context.Context, accessToken string) (*models.User, error)
}

type HTTPServer struct {
	address   string
	users     UserService
	logger    logging.Logger
	validator *requestValidator
	previews  EmailRenderer
}

// EmailRenderer renders an email body for the preview route.
type EmailRenderer interface {
	Render(msg mailer.Message) (string, error)
}

func NewHTTPServer(a string, l logging.Logger, us UserService) (*HTTPServer, error) {
	v, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &HTTPServer{
		address:   a,
		logger:    l.With("module", "http_server"),
		users:     us,
		validator: v,
	}, nil
}

// EnableEmailPreview mounts GET /emails/{template}, which renders a template
// with sample data. Only development builds should call it.
func (s *HTTPServer) EnableEmailPreview(r EmailRenderer) {
	s.previews = r
}

// Router builds the route tree.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.hello)
	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.Get("/verify/{token}", s.verify)
		r.Get("/resend_verify", s.resendVerify)
		r.Get("/refresh/{token}", s.refresh)
		r.Post("/forgot_pwd", s.forgotPassword)
		r.Post("/reset_pwd/{token}", s.resetPassword)
		r.With(s.bearerAuth).Get("/me", s.me)
	})

	if s.previews != nil {
		r.Get("/emails/{template}", s.emailPreview)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
