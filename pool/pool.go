package pool

import (
	"sync"

	"github.com/golang/glog"
)

// Handle is the pool's view of a connection lease.
type Handle interface {
	Destination() string
	Close() error
}

// Pool tracks connection handles. Registered handles are in flight,
// idle handles are available for reuse by destination.
type Pool interface {
	// Register marks the handle as in flight.
	Register(handle Handle)
	// RemoveIfPresent removes the handle from the in-flight set and
	// from the idle list. It reports whether the handle was present
	// and is safe to call for unknown handles.
	RemoveIfPresent(handle Handle) bool
	// AddIdle makes the handle available for a future AcquireIdle
	// with the same destination.
	AddIdle(handle Handle)
	// AcquireIdle removes and returns an idle handle for the given
	// destination.
	AcquireIdle(destination string) (Handle, bool)
	// IdleConnections returns the number of idle handles per destination.
	IdleConnections() map[string]int
	// Len returns the total number of tracked handles.
	Len() int
	// CloseIdle closes and removes all idle handles.
	CloseIdle() error
}

func NewPool() Pool {
	return &pool{
		active: make(map[Handle]struct{}),
		idle:   make(map[string][]Handle),
	}
}

type pool struct {
	mux    sync.Mutex
	active map[Handle]struct{}
	idle   map[string][]Handle
}

func (p *pool) Register(handle Handle) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.active[handle] = struct{}{}
}

func (p *pool) RemoveIfPresent(handle Handle) bool {
	p.mux.Lock()
	defer p.mux.Unlock()
	found := false
	if _, ok := p.active[handle]; ok {
		delete(p.active, handle)
		found = true
	}
	destination := handle.Destination()
	list := p.idle[destination]
	for i, h := range list {
		if h == handle {
			p.idle[destination] = append(list[:i], list[i+1:]...)
			found = true
			break
		}
	}
	if len(p.idle[destination]) == 0 {
		delete(p.idle, destination)
	}
	return found
}

func (p *pool) AddIdle(handle Handle) {
	p.mux.Lock()
	defer p.mux.Unlock()
	destination := handle.Destination()
	for _, h := range p.idle[destination] {
		if h == handle {
			glog.Warningf("connection to %s already idle", destination)
			return
		}
	}
	p.idle[destination] = append(p.idle[destination], handle)
	glog.V(2).Infof("connection to %s idle", destination)
}

func (p *pool) AcquireIdle(destination string) (Handle, bool) {
	p.mux.Lock()
	defer p.mux.Unlock()
	list := p.idle[destination]
	if len(list) == 0 {
		return nil, false
	}
	handle := list[len(list)-1]
	p.idle[destination] = list[:len(list)-1]
	if len(p.idle[destination]) == 0 {
		delete(p.idle, destination)
	}
	return handle, true
}

func (p *pool) IdleConnections() map[string]int {
	p.mux.Lock()
	defer p.mux.Unlock()
	result := make(map[string]int)
	for destination, list := range p.idle {
		result[destination] = len(list)
	}
	return result
}

func (p *pool) Len() int {
	p.mux.Lock()
	defer p.mux.Unlock()
	result := len(p.active)
	for _, list := range p.idle {
		result += len(list)
	}
	return result
}

func (p *pool) CloseIdle() error {
	p.mux.Lock()
	defer p.mux.Unlock()
	for destination, list := range p.idle {
		for _, handle := range list {
			if err := handle.Close(); err != nil {
				glog.Warningf("close idle connection to %s failed: %v", destination, err)
			}
		}
		delete(p.idle, destination)
	}
	return nil
}
