package supervisor

import (
	"fmt"
	"net"
	"strconv"
	"sync"
)

// PortPool hands out loopback ports from a fixed range. A port is only
// handed out if it can be bound at allocation time.
type PortPool struct {
	min, max int

	mu    sync.Mutex
	inUse map[int]string
	// bindable is replaced in tests.
	bindable func(port int) bool
}

func NewPortPool(minPort, maxPort int) *PortPool {
	return &PortPool{
		min:      minPort,
		max:      maxPort,
		inUse:    make(map[int]string),
		bindable: canBind,
	}
}

func canBind(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// Allocate reserves a port for owner. preferred is used when it is in range
// and free; otherwise the lowest free port is taken.
func (p *PortPool) Allocate(owner string, preferred int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if preferred >= p.min && preferred <= p.max {
		if _, taken := p.inUse[preferred]; !taken && p.bindable(preferred) {
			p.inUse[preferred] = owner
			return preferred, nil
		}
	}
	for port := p.min; port <= p.max; port++ {
		if _, taken := p.inUse[port]; taken {
			continue
		}
		if !p.bindable(port) {
			continue
		}
		p.inUse[port] = owner
		return port, nil
	}
	return 0, fmt.Errorf("no free port in %d-%d", p.min, p.max)
}

// Release frees port if owner holds it.
func (p *PortPool) Release(owner string, port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse[port] == owner {
		delete(p.inUse, port)
	}
}

func (p *PortPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}
