package wallet

import (
	"context"
	"sync"
)

// Connector is the external wallet connection state.
type Connector interface {
	// Address returns the connected address, or "".
	Address() string
	// Subscribe calls fn with the new address on every change.
	Subscribe(fn func(addr string)) (unsubscribe func())
	Disconnect(ctx context.Context) error
}

// LocalConnector keeps the wallet connection in process. The CLI connects
// it with an address typed by the user.
type LocalConnector struct {
	mu     sync.Mutex
	addr   string
	subs   map[int]func(string)
	nextID int
}

var _ Connector = (*LocalConnector)(nil)

func NewLocalConnector() *LocalConnector {
	return &LocalConnector{subs: make(map[int]func(string))}
}

func (c *LocalConnector) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

func (c *LocalConnector) Connect(addr string) {
	c.set(addr)
}

func (c *LocalConnector) Disconnect(context.Context) error {
	c.set("")
	return nil
}

func (c *LocalConnector) Subscribe(fn func(string)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *LocalConnector) set(addr string) {
	c.mu.Lock()
	if c.addr == addr {
		c.mu.Unlock()
		return
	}
	c.addr = addr
	subs := make([]func(string), 0, len(c.subs))
	for i := 0; i < c.nextID; i++ {
		if fn, ok := c.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(addr)
	}
}
