package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pickupper/backend/internal/config"
	"github.com/pickupper/backend/internal/logutil"
)

const (
	readHeaderTimeout = 10 * time.Second
	requestTimeout    = time.Minute
	idleTimeout       = 5 * time.Minute
)

// Serve listens on cfg.Addr and serves handler until ctx is done.
// In-flight requests get cfg.ShutdownTimeout to finish.
func Serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	return serveListener(ctx, ln, handler, cfg.ShutdownTimeout)
}

func serveListener(ctx context.Context, ln net.Listener, handler http.Handler, shutdownTimeout time.Duration) error {
	log := logutil.GetOrDefault(ctx).With().Str("server.addr", ln.Addr().String()).Logger()
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout,
		IdleTimeout:       idleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msg("HTTP server listening")
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() == nil {
			// Serve failed; nothing left to drain
			return nil
		}
		log.Info().Dur("timeout", shutdownTimeout).Msg("draining HTTP server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("shutdown did not complete")
			return err
		}
		log.Info().Msg("HTTP server stopped")
		return nil
	})
	return g.Wait()
}
