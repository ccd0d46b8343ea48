// Package httpapi exposes the identity service over HTTP with a uniform
// JSON envelope.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luminet/userauth"
)

// Server wraps the service with an http.Server and its routes.
type Server struct {
	svc    *userauth.Service
	log    *slog.Logger
	server *http.Server
}

// NewServer builds the server; addr is the listen address.
func NewServer(svc *userauth.Service, addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		svc: svc,
		log: log,
		server: &http.Server{
			Addr:         addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
	s.server.Handler = s.routes()
	return s
}

// Handler returns the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.logged(s.handleHealth))
	mux.HandleFunc("GET /public-key", s.logged(s.handlePublicKey))
	mux.HandleFunc("POST /register", s.logged(s.handleRegister))
	mux.HandleFunc("POST /login", s.logged(s.handleLogin))
	mux.HandleFunc("GET /verify", s.logged(s.handleVerify))
	mux.HandleFunc("POST /reset-password", s.logged(s.handleResetPassword))
	mux.HandleFunc("POST /logout", s.logged(s.handleLogout))
	mux.HandleFunc("POST /email/send-verification-code", s.logged(s.handleSendCode))
	mux.HandleFunc("GET /user/{userId}", s.logged(s.handleUserInfo))
	return mux
}

func (s *Server) logged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		s.log.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	}
}

// Start serves until an OS signal or a listener error, then shuts down
// gracefully with a 10 second drain window.
func (s *Server) Start() error {
	errChan := make(chan error, 1)

	go func() {
		s.log.Info("server starting", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-stop:
		s.log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
		s.log.Info("server stopped")
	}
	return nil
}
