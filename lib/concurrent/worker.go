// Package concurrent bounds how many jobs run at once.
package concurrent

import "sync"

type Work func()

type WorkQueue chan Work

// NewWorkerQueue. submit ke queue tidak menunggu worker; paling banyak
// numWorkers Work yang jalan bersamaan.
func NewWorkerQueue(numWorkers int) WorkQueue {
	if numWorkers < 1 {
		numWorkers = 1
	}
	queue := make(WorkQueue)
	d := make(dispatcher, numWorkers)
	go d.dispatch(queue)
	return queue
}

type dispatcher chan chan Work
type worker chan Work

func (d dispatcher) dispatch(queue WorkQueue) {
	for i := 0; i < cap(d); i++ {
		// start worker
		w := make(worker)
		go w.work(d)
	}

	go func() {
		for work := range queue {
			// new job
			go func(work Work) {
				worker := <-d
				worker <- work
			}(work)
		}

		// queue closed
		for i := 0; i < cap(d); i++ {
			w := <-d
			close(w)
		}
	}()
}

func (w worker) work(d dispatcher) {
	d <- w

	go w.wait(d)
}

func (w worker) wait(d dispatcher) {
	for work := range w {
		work()
		d <- w
	}
}

// Group runs funcs on a WorkQueue and keeps the first error.
type Group struct {
	queue  WorkQueue
	wg     sync.WaitGroup
	mu     sync.Mutex
	err    error
	closed sync.Once
}

func NewGroup(numWorkers int) *Group {
	return &Group{queue: NewWorkerQueue(numWorkers)}
}

func (g *Group) Go(fn func() error) {
	g.wg.Add(1)
	g.queue <- func() {
		defer g.wg.Done()
		if err := fn(); err != nil {
			g.mu.Lock()
			if g.err == nil {
				g.err = err
			}
			g.mu.Unlock()
		}
	}
}

// Wait blocks until every submitted func returned.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Close waits, then stops the workers. Go must not be called afterwards.
func (g *Group) Close() error {
	err := g.Wait()
	g.closed.Do(func() { close(g.queue) })
	return err
}
