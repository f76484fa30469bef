// common/safe/safe.go
package safe

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/YaganovValera/tasty-streamer/common/logger"
)

// PanicError is reported to OnExit when a goroutine panicked.
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("safe: task %q panicked: %v", e.Task, e.Value)
}

// Group runs named goroutines with panic protection. Unlike errgroup a
// failing task does not cancel its siblings unless CancelOnError is set:
// stream tasks own separate queues and terminate independently.
type Group struct {
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    *logger.Logger

	// CancelOnError cancels the group context when any task fails.
	CancelOnError bool
	// OnExit, when set, is called after every task returns with its error
	// (nil on clean exit, *PanicError after a recovered panic).
	OnExit func(task string, err error)
}

// New creates a group bound to a child of ctx.
func New(ctx context.Context, log *logger.Logger) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{
		ctx:    ctx,
		cancel: cancel,
		log:    log.Named("safe"),
	}
}

// Go starts fn in a protected goroutine.
func (g *Group) Go(task string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		err := g.run(task, fn)
		if err != nil {
			g.log.Error("task failed", zap.String("task", task), zap.Error(err))
			if g.CancelOnError {
				g.cancel()
			}
		}
		if g.OnExit != nil {
			g.OnExit(task, err)
		}
	}()
}

func (g *Group) run(task string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: task, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(g.ctx)
}

// Wait blocks until every task returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Stop cancels the group context and waits for the tasks.
func (g *Group) Stop() {
	g.cancel()
	g.wg.Wait()
}

// Context returns the group context.
func (g *Group) Context() context.Context {
	return g.ctx
}
