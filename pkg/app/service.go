package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrServerFailed wraps listener failures of HTTP services
var ErrServerFailed = errors.New("http server failed")

type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to Service
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// HTTPServer serves srv until ctx is done, then shuts it down within shutdownTimeout
func HTTPServer(srv *http.Server, shutdownTimeout time.Duration) Service {
	return ServiceFunc(func(ctx context.Context) error {
		serveErr := make(chan error, 1)
		go func() {
			serveErr <- srv.ListenAndServe()
		}()

		select {
		case err := <-serveErr:
			return fmt.Errorf("%w: %w", ErrServerFailed, err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%w: shutdown: %w", ErrServerFailed, err)
		}
		if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %w", ErrServerFailed, err)
		}
		return nil
	})
}

func actor(ctx context.Context, service Service) (func() error, func(err error)) {
	ctx, cancel := context.WithCancelCause(ctx)

	return func() error {
			return service.Run(ctx)
		}, func(err error) {
			cancel(err)
		}
}
