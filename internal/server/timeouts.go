// internal/server/timeouts.go
//
// HTTP server helper with hardened timeouts.
//
//   • ReadHeaderTimeout  abort slow-loris headers (5 s)
//   • ReadTimeout        cap body upload time; save bundles carry images (30 s)
//   • WriteTimeout       cap total response time; compose fans out (30 s)
//   • IdleTimeout        close idle keep-alives (60 s)
//
// The server timeouts are the only deadlines on a request.  Store calls
// inherit the request context and stop when the client goes away.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// New constructs an *http.Server with the defaults above.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// Run serves until ctx is cancelled, then drains for up to grace.
func Run(ctx context.Context, srv *http.Server, grace time.Duration, log *zap.Logger) error {
	errc := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("http draining", zap.Duration("grace", grace))
	shutCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
