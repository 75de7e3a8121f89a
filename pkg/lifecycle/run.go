package lifecycle

import (
	"context"
	"os/signal"
	"syscall"
	"time"
)

// Run starts svc, waits for ctx to end or for SIGINT/SIGTERM, then stops
// svc within shutdownTimeout.
func Run(ctx context.Context, svc *Service, shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return svc.Stop(stopCtx)
}
