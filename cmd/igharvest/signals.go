package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// interruptContext returns a context cancelled by the first SIGINT or
// SIGTERM. After that signal the default handlers are restored, so a second
// Ctrl-C terminates the process instead of waiting for in-flight tasks.
func interruptContext(parent context.Context, onSignal func(os.Signal)) (context.Context, context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return cancelOnSignal(parent, sigCh, func() { signal.Stop(sigCh) }, onSignal)
}

// cancelOnSignal cancels the returned context when sigCh delivers. release is
// called exactly once, before onSignal, or when the context ends first.
func cancelOnSignal(parent context.Context, sigCh <-chan os.Signal, release func(), onSignal func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case sig := <-sigCh:
			release()
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		case <-ctx.Done():
			release()
		}
	}()
	return ctx, cancel
}
