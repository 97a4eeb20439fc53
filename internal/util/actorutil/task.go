package actorutil

import (
	"context"
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var errNilResult = errors.New("background task: result is nil")

// BackgroundTask runs blocking work off the actor's mailbox and pipes the
// result back as a message. The actor context is never touched from the
// worker goroutine; results are delivered through the actor system root.
type BackgroundTask[T any] struct {
	system  *actor.ActorSystem
	fn      func(context.Context) (*T, error)
	timeout *time.Duration
	recover func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, fn func(context.Context) (*T, error)) *BackgroundTask[T] {
	return &BackgroundTask[T]{
		system: ctx.ActorSystem(),
		fn:     fn,
	}
}

// WithTimeout bounds the task. The context handed to fn is cancelled on expiry.
func (t *BackgroundTask[T]) WithTimeout(timeout time.Duration) *BackgroundTask[T] {
	t.timeout = &timeout
	return t
}

// Recover maps a failure to a result message. Without it failures are dropped.
func (t *BackgroundTask[T]) Recover(fn func(error) T) *BackgroundTask[T] {
	t.recover = fn
	return t
}

func (t *BackgroundTask[T]) PipeTo(pid *actor.PID) {
	go func() {
		value, err := t.Run()
		if err != nil {
			if t.recover == nil {
				return
			}
			value = t.recover(err)
		}
		t.system.Root.Send(pid, value)
	}()
}

// Run executes the task on the calling goroutine.
func (t *BackgroundTask[T]) Run() (T, error) {
	var taskCtx context.Context
	var cancel context.CancelFunc
	if t.timeout != nil {
		taskCtx, cancel = context.WithTimeout(context.Background(), *t.timeout)
	} else {
		taskCtx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	bg := io.Eval(func() (T, error) {
		var zero T
		a, err := t.fn(taskCtx)
		if err != nil {
			return zero, err
		}
		if a == nil {
			return zero, errNilResult
		}
		return *a, nil
	})
	if t.timeout != nil {
		bg = io.WithTimeout[T](*t.timeout)(bg)
	}
	result := io.RunSync(bg)
	return result.Value, result.Error
}
