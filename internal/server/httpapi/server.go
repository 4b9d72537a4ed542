// Package httpapi exposes the credential lifecycle over HTTP. It is thin
// glue: handlers decode JSON, call the credential service, and translate the
// service's error families into status codes. All state transitions live in
// the service layer.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/auth"
	"github.com/dmitrijs2005/authgate/internal/server/services"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	address     string
	credentials *services.CredentialService
	signer      *auth.Signer
	logger      logging.Logger
	origins     []string
}

func NewServer(address string, cs *services.CredentialService, signer *auth.Signer, l logging.Logger, allowedOrigins []string) *Server {
	return &Server{
		address:     address,
		credentials: cs,
		signer:      signer,
		logger:      l.With("module", "http_server"),
		origins:     allowedOrigins,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests for up to
// shutdownTimeout before returning.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return <-errCh
}
