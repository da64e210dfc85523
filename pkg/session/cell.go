package session

import (
	"maps"
	"slices"
	"sync"
)

// Cell holds the current State and notifies subscribers on every write.
// Only the Composer writes to it.
type Cell struct {
	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
}

func NewCell() *Cell {
	return &Cell{subs: make(map[int]func(State))}
}

func (c *Cell) Get() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cell) set(s State) {
	c.mu.Lock()
	c.state = s
	fns := make([]func(State), 0, len(c.subs))
	for _, id := range slices.Sorted(maps.Keys(c.subs)) {
		fns = append(fns, c.subs[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Subscribe registers fn and returns a function that removes it. Calling
// the returned function more than once is a no-op.
func (c *Cell) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}
