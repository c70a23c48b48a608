// Package exprcache is a thread-safe LRU cache of compiled expr-lang
// programs, adapted from the teacher's condition cache
// (internal/application/engine/condition_cache.go) for compiling the stage
// controller's values-limit gate predicate instead of workflow edge
// conditions.
package exprcache

import (
	"container/list"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Cache is a thread-safe LRU cache for compiled expr-lang programs.
type Cache struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
	mu       sync.RWMutex
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

// New creates a Cache with the given capacity (<=0 defaults to 32).
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 32
	}
	return &Cache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Compile returns the compiled program for expression, compiling and
// caching it on first use.
func (c *Cache) Compile(expression string, options ...expr.Option) (*vm.Program, error) {
	if p, ok := c.get(expression); ok {
		return p, nil
	}
	program, err := expr.Compile(expression, options...)
	if err != nil {
		return nil, err
	}
	c.put(expression, program)
	return program, nil
}

func (c *Cache) get(expression string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.cache[expression]; ok {
		c.lruList.MoveToFront(el)
		return el.Value.(*cacheEntry).program, true
	}
	return nil, false
}

func (c *Cache) put(expression string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.cache[expression]; ok {
		c.lruList.MoveToFront(el)
		el.Value.(*cacheEntry).program = program
		return
	}
	el := c.lruList.PushFront(&cacheEntry{key: expression, program: program})
	c.cache[expression] = el
	if c.lruList.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *Cache) evictOldest() {
	oldest := c.lruList.Back()
	if oldest == nil {
		return
	}
	c.lruList.Remove(oldest)
	delete(c.cache, oldest.Value.(*cacheEntry).key)
}
