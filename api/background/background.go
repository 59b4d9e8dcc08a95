package background

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

// Background runs fire-and-forget tasks and lets the server wait for them
// before exiting.
type Background struct {
	log logrus.FieldLogger
	wg  sync.WaitGroup
}

func New(log logrus.FieldLogger) *Background {
	return &Background{log: log}
}

func (b *Background) Go(fn func()) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		defer func() {
			if rec := recover(); rec != nil {
				b.log.WithField("trace", string(debug.Stack())).Error(fmt.Sprintf("background task panic: %v", rec))
			}
		}()

		fn()
	}()
}

// Shutdown waits for the running tasks or gives up when ctx is done.
func (b *Background) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}
