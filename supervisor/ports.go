package supervisor

import (
	"sync"

	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/cmn/debug"
)

// PortPool is the fixed free-pool of stream ports a streaming worker type
// allocates from at construction (spec §4.6): a port is either free or held
// by exactly one worker (spec §3 invariant).
type PortPool struct {
	mu   sync.Mutex
	free []int
	held map[int]string // port -> owning worker name
}

func NewPortPool(ports []int) *PortPool {
	free := make([]int, len(ports))
	copy(free, ports)
	return &PortPool{free: free, held: make(map[int]string)}
}

// Alloc takes one free port for owner, or fails if the pool is exhausted
// (spec §4.6/§7/§8: "all streaming ports are taken").
func (p *PortPool) Alloc(owner string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return 0, cos.NewErrResourceExhausted("all streaming ports are taken")
	}
	port := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	debug.Assert(owner != "", "port pool: Alloc called with an empty owner name")
	p.held[port] = owner
	return port, nil
}

// Release returns port to the free pool. Releasing a port not currently
// held is a no-op.
func (p *PortPool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.held[port]; !ok {
		return
	}
	delete(p.held, port)
	p.free = append(p.free, port)
}

// Len reports how many ports are currently free, for tests/introspection.
func (p *PortPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
