package metrics

import (
	"sync"
	"time"
)

// userCounter is the minimal slice of storage.Store the Collector needs.
// Kept as a local interface rather than importing pkg/storage directly so
// this package has no dependency on the persistence layer's concrete
// shape beyond one method.
type userCounter interface {
	ListUsers(pattern string) ([]string, error)
}

// Collector periodically refreshes gauges that are not naturally
// event-driven (unlike the Raft gauges, which pkg/consensus.Engine sets
// inline on every state transition). onTick, if set, runs alongside the
// store refresh on every tick — pkg/node uses it to keep the "consensus"
// health component (health.go) current without this package needing to
// import pkg/consensus (which itself imports this package).
type Collector struct {
	store  userCounter
	onTick func()
	period time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector builds a Collector that refreshes every period. onTick may
// be nil.
func NewCollector(store userCounter, onTick func(), period time.Duration) *Collector {
	return &Collector{store: store, onTick: onTick, period: period, stopCh: make(chan struct{})}
}

// Start launches the background refresh loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop signals the refresh loop to exit and waits for it.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	c.refresh()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.refresh()
		}
	}
}

func (c *Collector) refresh() {
	users, err := c.store.ListUsers("")
	if err == nil {
		ChatUsersTotal.Set(float64(len(users)))
	}
	if c.onTick != nil {
		c.onTick()
	}
}
