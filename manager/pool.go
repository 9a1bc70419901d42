// File: manager/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pool owns a fixed set of selector.Loop instances, round-robins accepted
// fds and outbound connects across them, and implements selector.Manager
// by fanning lifecycle notifications and blocking work out to the control
// and concurrency stacks.

package manager

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/momentics/nioselect/adapters"
	"github.com/momentics/nioselect/api"
	"github.com/momentics/nioselect/endpoint"
	"github.com/momentics/nioselect/reactor"
	"github.com/momentics/nioselect/scheduler"
	"github.com/momentics/nioselect/selector"
)

// Config carries the ambient, hot-reloadable knobs a Pool consults. Field
// names match the control.ConfigStore keys documented for this package.
type Config struct {
	LoopCount      int
	ConnectTimeout time.Duration
	StopTimeout    time.Duration
	DumpTimeout    time.Duration
	PriorityDelta  int
	PinLoops       bool
	Workers        int
}

// DefaultConfig returns the baseline a Pool starts from before any
// control.ConfigStore override is applied.
func DefaultConfig() Config {
	return Config{
		LoopCount:      runtime.NumCPU(),
		ConnectTimeout: 10 * time.Second,
		StopTimeout:    5 * time.Second,
		DumpTimeout:    5 * time.Second,
		PriorityDelta:  0,
		PinLoops:       false,
		Workers:        runtime.NumCPU(),
	}
}

// Pool wires together the loops, the worker executor, the timer scheduler,
// and the control-plane stack (config/metrics/debug) into one
// selector.Manager. It owns endpoint construction for the default buffer-
// pooled endpoint.Endpoint implementation.
type Pool struct {
	cfg      Config
	loops    []*selector.Loop
	reactors []reactor.EventReactor
	next     atomic.Uint64

	exec  api.Executor
	sched *scheduler.Scheduler
	ctrl  api.Control

	affinity []api.Affinity

	bufPool endpoint.BufferPool

	onOpen   func(selector.Connection)
	onClose  func(selector.Connection)
	onFailed func(uintptr, *selector.ConnectError, any)
}

// OnConnectionOpened registers fn to run whenever a new Connection has been
// fully wired (after SetConnection). Only one hook is kept; a later call
// replaces the previous one.
func (p *Pool) OnConnectionOpened(fn func(selector.Connection)) { p.onOpen = fn }

// OnConnectionClosed registers fn to run whenever a Connection's endpoint
// closes normally.
func (p *Pool) OnConnectionClosed(fn func(selector.Connection)) { p.onClose = fn }

// OnConnectFailed registers fn to run whenever an outbound Connect fails or
// times out.
func (p *Pool) OnConnectFailed(fn func(uintptr, *selector.ConnectError, any)) { p.onFailed = fn }

// New builds a Pool with cfg.LoopCount loops, a worker executor sized at
// cfg.Workers, and a background scheduler for connect timeouts. Loops are
// constructed but not started; call Run to start them all.
func New(cfg Config, bufPool endpoint.BufferPool) (*Pool, error) {
	if cfg.LoopCount <= 0 {
		cfg.LoopCount = 1
	}
	p := &Pool{
		cfg:     cfg,
		exec:    adapters.NewExecutorAdapter(cfg.Workers, cfg.PinLoops),
		sched:   scheduler.New(),
		ctrl:    adapters.NewControlAdapter(),
		bufPool: bufPool,
	}
	p.ctrl.SetConfig(map[string]any{
		"loop_count":      cfg.LoopCount,
		"connect_timeout": cfg.ConnectTimeout,
		"stop_timeout":    cfg.StopTimeout,
		"dump_timeout":    cfg.DumpTimeout,
		"priority_delta":  cfg.PriorityDelta,
	})

	for i := 0; i < cfg.LoopCount; i++ {
		mux, err := reactor.NewReactor()
		if err != nil {
			p.closePartial(i)
			return nil, err
		}
		l := selector.NewLoop(i, mux, p)
		l.SetStopTimeout(cfg.StopTimeout)
		l.SetDumpTimeout(cfg.DumpTimeout)
		p.loops = append(p.loops, l)
		p.reactors = append(p.reactors, mux)
		if cfg.PinLoops {
			p.affinity = append(p.affinity, adapters.NewAffinityAdapter())
		}
	}
	return p, nil
}

func (p *Pool) closePartial(n int) {
	for i := 0; i < n; i++ {
		_ = p.reactors[i].Close()
	}
}

// Run starts every loop on its own OS-thread-locked goroutine and blocks
// until all of them have exited (normally via Stop).
func (p *Pool) Run() {
	done := make(chan struct{}, len(p.loops))
	for idx, l := range p.loops {
		loop := l
		cpu := idx
		go func() {
			if p.cfg.PinLoops {
				_ = p.affinity[cpu].Pin(cpu, -1)
			}
			loop.Run()
			done <- struct{}{}
		}()
	}
	for range p.loops {
		<-done
	}
}

// Stop gracefully stops every loop, in parallel, and shuts down the
// scheduler and executor once they have all drained.
func (p *Pool) Stop() error {
	errCh := make(chan error, len(p.loops))
	for _, l := range p.loops {
		loop := l
		go func() { errCh <- loop.Stop() }()
	}
	var first error
	for range p.loops {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
	}
	p.sched.Close()
	if c, ok := p.exec.(interface{ Close() }); ok {
		c.Close()
	}
	return first
}

// Listen registers listenFd as an acceptor on the next loop in round-robin
// order; live load is not taken into account.
func (p *Pool) Listen(listenFd uintptr) error {
	return p.pickLoop().Start(listenFd)
}

func (p *Pool) pickLoop() *selector.Loop {
	n := p.next.Add(1)
	return p.loops[int(n)%len(p.loops)]
}

// --- selector.Manager ---

// Accepted assigns a freshly accepted fd to the next loop in round-robin
// order, with no attachment: callers wanting a specific attachment should
// submit the accept change to a chosen loop directly instead.
func (p *Pool) Accepted(fd uintptr) error {
	return p.pickLoop().Accept(fd, nil)
}

// FinishConnect completes a non-blocking connect by checking SO_ERROR.
func (p *Pool) FinishConnect(fd uintptr) (bool, error) {
	return selector.FinishConnect(fd)
}

// NewEndPoint builds the default buffer-pooled endpoint for fd.
func (p *Pool) NewEndPoint(fd uintptr, l *selector.Loop, key *selector.Key) (selector.SelectableEndPoint, error) {
	return endpoint.New(fd, l, key, p.bufPool), nil
}

// NewConnection builds the Connection wrapper for an opened EndPoint. The
// default endpoint.Connection simply forwards Close to the endpoint and
// carries the caller-supplied attachment for protocol code to recover.
func (p *Pool) NewConnection(fd uintptr, ep selector.SelectableEndPoint, attachment any) (selector.Connection, error) {
	ep2, ok := ep.(*endpoint.Endpoint)
	if !ok {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "manager: endpoint is not *endpoint.Endpoint")
	}
	return endpoint.NewConnection(ep2, attachment), nil
}

func (p *Pool) EndPointOpened(ep selector.SelectableEndPoint) {}

func (p *Pool) EndPointClosed(ep selector.SelectableEndPoint) {}

func (p *Pool) ConnectionOpened(c selector.Connection) {
	if p.onOpen != nil {
		p.onOpen(c)
	}
}

func (p *Pool) ConnectionClosed(c selector.Connection) {
	if p.onClose != nil {
		p.onClose(c)
	}
}

func (p *Pool) ConnectionFailed(fd uintptr, cause *selector.ConnectError, attachment any) {
	if p.onFailed != nil {
		p.onFailed(fd, cause, attachment)
	}
}

// Execute hands substantive endpoint work to the shared worker pool so the
// loop goroutine never blocks past readiness notification.
func (p *Pool) Execute(task func()) error {
	return p.exec.Submit(task)
}

// Schedule books a timer task on the shared scheduler.
func (p *Pool) Schedule(delay time.Duration, fn func()) (selector.Cancelable, error) {
	t, err := p.sched.Schedule(delay, fn)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Pool) ConnectTimeout() time.Duration { return p.cfg.ConnectTimeout }
func (p *Pool) PriorityDelta() int            { return p.cfg.PriorityDelta }
