package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_CancelRunsShutdownFuncs(t *testing.T) {
	runner := NewRunner(NewLogger(ErrorLevel, io.Discard), time.Second)

	var taskStopped, shutdownCalled atomic.Bool
	runner.AddTask(func(ctx context.Context) error {
		<-ctx.Done()
		taskStopped.Store(true)
		return nil
	})
	runner.RegisterShutdownFunc(func(ctx context.Context) error {
		shutdownCalled.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.True(t, taskStopped.Load())
	assert.True(t, shutdownCalled.Load())
}

func TestRunner_TaskErrorStopsEverything(t *testing.T) {
	runner := NewRunner(NewLogger(ErrorLevel, io.Discard), time.Second)
	runner.AddServer(&http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()})
	runner.AddTask(func(ctx context.Context) error {
		return errors.New("watcher failed")
	})

	err := runner.Run(context.Background())
	assert.EqualError(t, err, "watcher failed")
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("boom"), "panic: boom")
}

func TestRecoverPanicWithCallback(t *testing.T) {
	called := false
	func() {
		defer RecoverPanicWithCallback(NewLogger(ErrorLevel, io.Discard), "test", func() { called = true })
		panic("boom")
	}()
	assert.True(t, called)
}
