package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/advens/darwin-go/internal/darwinlog"
)

// worker runs tasks handed to it by the pool's dispatcher on its own channel.
type worker struct {
	id    int
	tasks chan Task
	log   *darwinlog.Logger
}

func newWorker(id int, log *darwinlog.Logger) *worker {
	return &worker{id: id, tasks: make(chan Task, 1), log: log}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go w.run(ctx, wg)
}

func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.tasks:
			if task != nil {
				w.execSafely(ctx, task)
			}
		}
	}
}

// execSafely recovers from a panicking task so that a single
// misbehaving classifier (e.g. a third-party YARA-style engine)
// cannot take down the daemon, per spec.md §7's "a bad session never
// kills the process" principle extended to task execution.
func (w *worker) execSafely(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("worker recovered from panicking task", map[string]any{"worker": w.id, "panic": fmt.Sprint(r)})
		}
	}()
	if err := task.Execute(ctx); err != nil {
		w.log.Debug("task returned error", map[string]any{"worker": w.id, "err": err.Error()})
	}
}
