package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext returns a context cancelled on SIGINT/SIGTERM. The batch
// runner stops after the in-flight symbol, so shutdown stays graceful.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(signals)
		select {
		case sig := <-signals:
			slog.Info("received signal, graceful shutdown", "sig", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
