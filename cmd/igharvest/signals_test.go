package main

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelOnSignalReleasesBeforeCancelling(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	var released atomic.Int32
	seen := make(chan os.Signal, 1)

	ctx, cancel := cancelOnSignal(context.Background(), sigCh,
		func() { released.Add(1) },
		func(sig os.Signal) {
			assert.Equal(t, int32(1), released.Load(), "handlers are restored before the warning")
			seen <- sig
		},
	)
	defer cancel()

	sigCh <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by the first interrupt")
	}
	assert.Equal(t, os.Interrupt, <-seen)
	assert.Equal(t, int32(1), released.Load())
}

func TestCancelOnSignalReleasesOnNormalExit(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	released := make(chan struct{})
	called := false

	_, cancel := cancelOnSignal(context.Background(), sigCh,
		func() { close(released) },
		func(os.Signal) { called = true },
	)
	cancel()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("signal handlers not released")
	}
	assert.False(t, called)
}

func TestInterruptContextCancelsOnSigterm(t *testing.T) {
	seen := make(chan os.Signal, 1)
	ctx, cancel := interruptContext(context.Background(), func(sig os.Signal) { seen <- sig })
	defer cancel()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	select {
	case sig := <-seen:
		assert.Equal(t, syscall.SIGTERM, sig)
	case <-time.After(5 * time.Second):
		t.Fatal("SIGTERM not observed")
	}
	<-ctx.Done()
}
