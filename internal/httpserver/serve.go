// Package httpserver runs an http.Handler until its context is cancelled.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/panyam/secrets/internal/logutil"
)

// ShutdownTimeout bounds how long in-flight requests get to finish once the
// context is cancelled.
var ShutdownTimeout = 30 * time.Second

// New returns a server for handler with the app's timeouts. Request contexts
// derive from ctx without its cancellation, so shutdown drains them instead
// of aborting them.
func New(ctx context.Context, addr string, handler http.Handler) *http.Server {
	base := context.WithoutCancel(ctx)
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

// Serve listens on addr and blocks until ctx is cancelled and the server has
// shut down, or until listening fails.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln, handler)
}

// ServeListener is Serve on an already open listener.
func ServeListener(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := New(ctx, ln.Addr().String(), handler)
	log := logutil.GetOrDefault(ctx).With().Str("addr", srv.Addr).Logger()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Msg("listening")
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
		return err
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("stopped")
	return nil
}
