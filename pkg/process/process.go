package process

import (
	"context"
	"sync"

	"github.com/qianqian121/GIFT-Grab/pkg/log"
)

type Process interface {
	Setup() Process
	Start()
	Stop()
	Wait()
}

// Settings describes a background routine. Process is handed a context
// which is cancelled by Stop, and returns one channel per goroutine it
// spawned; each goroutine closes its channel when it has exited.
type Settings struct {
	WaitForShutdownMsg string
	Process            func(context.Context) []chan interface{}
}

func New(settings Settings) Process {
	return &process{
		waitForShutdownMsg: settings.WaitForShutdownMsg,
		process:            settings.Process,
	}
}

type process struct {
	mu                 sync.Mutex
	process            func(context.Context) []chan interface{}
	waitForShutdownMsg string
	started            bool
	canceller          context.CancelFunc
	signals            []chan interface{}
}

func (p *process) logShutdown() {
	if len(p.waitForShutdownMsg) > 0 {
		log.Info(p.waitForShutdownMsg)
	}
}

func (p *process) Setup() Process { return p }

// Start launches the routine once; later calls are ignored.
func (p *process) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	ctx, canceller := context.WithCancel(context.Background())
	p.canceller = canceller
	p.signals = append(p.signals, p.process(ctx)...)
}

func (p *process) Stop() {
	p.mu.Lock()
	canceller := p.canceller
	p.mu.Unlock()

	p.logShutdown()
	if canceller != nil {
		canceller()
	}
}

func (p *process) Wait() {
	p.mu.Lock()
	signals := p.signals
	p.mu.Unlock()

	for _, sig := range signals {
		<-sig
	}
}
