package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/tasty-streamer/common/logger"
)

// WaitForSignals blocks until SIGINT/SIGTERM or ctx is done, then calls cancel.
func WaitForSignals(ctx context.Context, cancel context.CancelFunc, log *logger.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("shutdown: signal received", zap.String("signal", sig.String()))
		cancel()
	case <-ctx.Done():
	}
}

// Graceful runs fn with a fresh timeout context and logs the outcome.
func Graceful(name string, timeout time.Duration, fn func(ctx context.Context) error, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info("shutdown: stopping " + name)
	if err := fn(ctx); err != nil {
		log.Error("shutdown: error in "+name, zap.Error(err))
		return
	}
	log.Info("shutdown: " + name + " stopped cleanly")
}

// Close adapts a plain Close() error to the Graceful signature.
func Close(fn func() error) func(context.Context) error {
	return func(context.Context) error { return fn() }
}
