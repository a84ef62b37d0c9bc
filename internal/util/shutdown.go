package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// WaitForShutdown blocks until SIGINT/SIGTERM arrives and then calls fn with
// a bounded context. Replicas otherwise loop forever; this is the only clean
// exit path.
func WaitForShutdown(fn func(ctx context.Context)) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	ctx, cancel := context.WithTimeout(context.Background(), EnvDuration("SHUTDOWN_TIMEOUT", 3*time.Second))
	defer cancel()
	fn(ctx)
}
