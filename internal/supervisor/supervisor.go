// Package supervisor starts the DNS responder and HTTPS proxy
// concurrently and joins them with first-failure-cancels-the-other
// semantics, additionally watching for an interrupt signal.
package supervisor

import (
	"context"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// Subsystem is anything the supervisor runs to completion or failure:
// Serve must block until ctx is cancelled or a fatal error occurs, and
// must return promptly once ctx is done.
type Subsystem interface {
	Serve(ctx context.Context) error
}

// Run starts every subsystem concurrently under a shared, cancellable
// context. On signal (SIGINT/SIGTERM) it cancels that context and
// returns nil without waiting for in-flight work. If any subsystem
// returns a non-nil error, the others are cancelled and that error is
// returned.
func Run(ctx context.Context, subsystems ...Subsystem) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	for _, s := range subsystems {
		s := s
		g.Go(func() error {
			return s.Serve(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-sigCtx.Done():
			return nil
		default:
			return err
		}
	}
	return nil
}
