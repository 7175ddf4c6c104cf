package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SignalContext returns a context cancelled on SIGINT/SIGTERM, so the
// engine can drain pending correlations and flush its journals.
// If a second signal arrives during gracePeriod, os.Exit(1) is called.
//
//	ctx, cancel := cli.SignalContext(duration.SignalGrace)
//	defer cancel()
func SignalContext(gracePeriod time.Duration) (context.Context, context.CancelFunc) {
	return signalContextWithNotifier(gracePeriod, nil, nil, os.Stderr)
}

// signalContextWithNotifier is the internal implementation for testing.
// sigChan, if non-nil, overrides the real signal channel.
// exitFn, if non-nil, overrides os.Exit for testing.
func signalContextWithNotifier(
	gracePeriod time.Duration,
	sigChan chan os.Signal,
	exitFn func(int),
	stderr io.Writer,
) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	ownChannel := sigChan == nil
	if ownChannel {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	}
	if exitFn == nil {
		exitFn = os.Exit
	}
	if stderr == nil {
		stderr = io.Discard
	}

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(stderr)
			fmt.Fprintf(stderr, "Interrupt received, draining correlations (press Ctrl+C again within %s to abort)...\n", gracePeriod)
			cancel()

			select {
			case <-sigChan:
				exitFn(1)
			case <-time.After(gracePeriod):
			}
		case <-ctx.Done():
		}
		if ownChannel {
			signal.Stop(sigChan)
		}
	}()

	return ctx, cancel
}
