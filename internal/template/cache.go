// Package template implements the template compiler's output type and the
// process-wide compiled-template cache of spec §3/§4.4.
//
// The cache is a bounded concurrent LRU rather than an unbounded sync.Map:
// golang-lru's Cache is already safe for concurrent insert-or-get (spec §9),
// and because compilation is idempotent (spec §3: "the design tolerates
// duplicate inserts for the same key"), an evicted entry simply gets
// recompiled on next use instead of corrupting anything.
package template

import (
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Sub is one substitution slot recorded by the compiler: the slot id as it
// appears in the template body's NormalSubstitution/OptionalSubstitution
// token, and whether it was optional.
type Sub struct {
	SlotID   uint16
	Optional bool
}

// Compiled is a template body decomposed into alternating static text and
// substitution slots. The invariant len(Parts) == len(Subs)+1 always holds
// for a successfully compiled template (spec §4.4).
type Compiled struct {
	Parts []string
	Subs  []Sub
}

// DefaultSize bounds the number of distinct template GUIDs the process-wide
// cache holds concurrently. A single .evtx file rarely defines more than a
// few dozen distinct templates per chunk; this comfortably covers files with
// thousands of chunks without unbounded growth.
const DefaultSize = 4096

// Cache is the process-wide compiled-template cache, keyed by template GUID
// and shared (read and written) across every chunk worker.
type Cache struct {
	lru *lru.Cache[uuid.UUID, *Compiled]
}

// NewCache creates a cache holding up to size distinct template GUIDs.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[uuid.UUID, *Compiled](size)
	if err != nil {
		// Only returns an error for size <= 0, guarded above.
		panic(err)
	}
	return &Cache{lru: c}
}

// Lookup returns the compiled template for guid. A nil *Compiled with
// found == true means compilation was already attempted and bailed (spec
// §3's "None" variant): callers should interpret rather than retry.
func (c *Cache) Lookup(guid uuid.UUID) (compiled *Compiled, found bool) {
	return c.lru.Get(guid)
}

// Store records the outcome of compiling guid. Passing a nil compiled
// records a permanent bail. Concurrent Store calls for the same guid are
// idempotent by contract (spec §9); either write may win.
func (c *Cache) Store(guid uuid.UUID, compiled *Compiled) {
	c.lru.Add(guid, compiled)
}
