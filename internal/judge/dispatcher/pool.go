package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"judgehost/pkg/utils/logger"

	"go.uber.org/zap"
)

// pool runs units on a fixed number of goroutines.
type pool struct {
	size      int
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
	workCh    chan func()
}

// newPool sizes the backlog to the worker count; callers reserve a container
// slot before Submit, so the channel never holds more than size units.
func newPool(size int) *pool {
	if size <= 0 {
		size = 1
	}
	return &pool{size: size, workCh: make(chan func(), size)}
}

func (p *pool) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(p.size)
		for i := 0; i < p.size; i++ {
			go p.loop()
		}
	})
}

func (p *pool) Submit(unit func()) {
	p.workCh <- unit
}

// Shutdown stops accepting units and waits for queued and running ones to finish.
func (p *pool) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.workCh)
		p.wg.Wait()
	})
}

func (p *pool) loop() {
	defer p.wg.Done()
	for unit := range p.workCh {
		p.run(unit)
	}
}

func (p *pool) run(unit func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), "dispatcher unit panicked",
				zap.String("panic", fmt.Sprint(r)), zap.String("stack", string(debug.Stack())))
		}
	}()
	unit()
}
