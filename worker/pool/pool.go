package pool

import (
	"sync"

	"go.uber.org/zap"
)

// Group runs a fixed set of long-lived worker loops and waits for them to
// drain on shutdown.
type Group struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewGroup(logger *zap.Logger) *Group {
	return &Group{logger: logger}
}

// Go starts one loop. A panic is logged and ends that loop without taking
// down the process.
func (g *Group) Go(name string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("worker loop panicked",
					zap.String("worker", name),
					zap.Any("panic", r),
				)
			}
		}()
		fn()
	}()
}

func (g *Group) Wait() {
	g.wg.Wait()
}
