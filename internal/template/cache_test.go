package template

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestCacheStoreLookup(t *testing.T) {
	c := NewCache(0)
	id := uuid.New()

	if _, found := c.Lookup(id); found {
		t.Fatal("Lookup on empty cache reported found")
	}

	want := &Compiled{
		Parts: []string{"<a>", "</a>"},
		Subs:  []Sub{{SlotID: 0, Optional: false}},
	}
	c.Store(id, want)

	got, found := c.Lookup(id)
	if !found {
		t.Fatal("Lookup after Store reported not found")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lookup mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheStoreNilIsPermanentBail(t *testing.T) {
	c := NewCache(0)
	id := uuid.New()

	c.Store(id, nil)

	got, found := c.Lookup(id)
	if !found {
		t.Fatal("Lookup after storing a bail reported not found")
	}
	if got != nil {
		t.Errorf("Lookup = %v, want nil", got)
	}
}

func TestCacheDefaultSize(t *testing.T) {
	c := NewCache(-1)
	if c.lru.Len() != 0 {
		t.Fatalf("new cache has %d entries, want 0", c.lru.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	a, b, d := uuid.New(), uuid.New(), uuid.New()

	c.Store(a, &Compiled{Parts: []string{"a"}})
	c.Store(b, &Compiled{Parts: []string{"b"}})
	c.Store(d, &Compiled{Parts: []string{"d"}}) // evicts a, the LRU entry

	if _, found := c.Lookup(a); found {
		t.Error("evicted entry a still found; test assumption about LRU order is wrong")
	}
	if _, found := c.Lookup(d); !found {
		t.Error("freshly stored entry d not found")
	}
}
