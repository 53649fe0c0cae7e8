package db

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parisxmas/OxiDB/OxiForms/internal/logger"
	"github.com/parisxmas/OxiDB/OxiForms/internal/oxidb"
)

const (
	dialTimeout       = 5 * time.Second
	keepaliveInterval = 10 * time.Second
)

// Pool is a round-robin connection pool for OxiDB with auto-reconnect.
//
// Shared clients serve single commands. Transactions need a connection of
// their own for the whole begin/commit span, so they draw from a separate
// set of pinned connections via With.
type Pool struct {
	host    string
	port    int
	log     logger.Logger
	clients []*oxidb.Client
	mu      []sync.Mutex
	idx     uint64
	pinned  chan *oxidb.Client
	stop    chan struct{}
	done    sync.WaitGroup
}

// NewPool creates a pool of size shared OxiDB connections plus up to size
// pinned ones, dialed lazily.
func NewPool(ctx context.Context, host string, port, size int, log logger.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool: size must be positive, got %d", size)
	}
	p := &Pool{
		host:    host,
		port:    port,
		log:     log,
		clients: make([]*oxidb.Client, size),
		mu:      make([]sync.Mutex, size),
		pinned:  make(chan *oxidb.Client, size),
		stop:    make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		c, err := p.dial(ctx)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("pool: connect client %d: %w", i, err)
		}
		p.clients[i] = c
		p.pinned <- nil
	}
	p.done.Add(1)
	go p.keepalive()
	return p, nil
}

func (p *Pool) dial(ctx context.Context) (*oxidb.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	return oxidb.Connect(ctx, p.host, p.port)
}

// Get returns the next client in round-robin order, reconnecting if needed.
func (p *Pool) Get() *oxidb.Client {
	n := atomic.AddUint64(&p.idx, 1)
	i := int(n % uint64(len(p.clients)))
	p.mu[i].Lock()
	defer p.mu[i].Unlock()
	if p.clients[i].Broken() {
		p.reconnectLocked(i)
	}
	return p.clients[i]
}

// With runs fn on a connection nobody else uses until fn returns. It blocks
// while every pinned connection is busy.
func (p *Pool) With(ctx context.Context, fn func(c *oxidb.Client) error) error {
	var c *oxidb.Client
	select {
	case c = <-p.pinned:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c == nil || c.Broken() {
		if c != nil {
			_ = c.Close()
		}
		var err error
		if c, err = p.dial(ctx); err != nil {
			p.pinned <- nil
			return fmt.Errorf("pool: dial pinned connection: %w", err)
		}
	}
	defer func() {
		if c.Broken() {
			_ = c.Close()
			c = nil
		}
		p.pinned <- c
	}()
	return fn(c)
}

// HealthCheck pings one shared connection.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if _, err := p.Get().Ping(ctx); err != nil {
		return fmt.Errorf("pool: ping: %w", err)
	}
	return nil
}

func (p *Pool) reconnect(i int) {
	p.mu[i].Lock()
	defer p.mu[i].Unlock()
	p.reconnectLocked(i)
}

func (p *Pool) reconnectLocked(i int) {
	c, err := p.dial(context.Background())
	if err != nil {
		p.log.Warn("pool: reconnect failed", "client", i, "error", err)
		return
	}
	if p.clients[i] != nil {
		_ = p.clients[i].Close()
	}
	p.clients[i] = c
}

func (p *Pool) keepalive() {
	defer p.done.Done()
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			for i := range p.clients {
				ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
				p.mu[i].Lock()
				c := p.clients[i]
				p.mu[i].Unlock()
				_, err := c.Ping(ctx)
				cancel()
				if err != nil {
					p.log.Warn("pool: ping failed, reconnecting", "client", i, "error", err)
					p.reconnect(i)
				}
			}
		}
	}
}

// Close closes all connections.
func (p *Pool) Close() {
	select {
	case <-p.stop:
		return
	default:
		close(p.stop)
	}
	p.done.Wait()
	for _, c := range p.clients {
		if c != nil {
			_ = c.Close()
		}
	}
	for {
		select {
		case c := <-p.pinned:
			if c != nil {
				_ = c.Close()
			}
		default:
			return
		}
	}
}
