package registry

import (
	"fmt"
	"sync"
	"testing"
)

type fakePusher struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (f *fakePusher) Push(msg []byte) {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
}

func TestAddLookupRemove(t *testing.T) {
	r := New()
	p1 := &fakePusher{}
	p2 := &fakePusher{}

	r.Add(1, "c1", p1)
	r.Add(1, "c2", p2)

	if got := len(r.Lookup(1)); got != 2 {
		t.Fatalf("expected 2 connections, got %d", got)
	}

	r.Remove(1, "c1")
	if got := len(r.Lookup(1)); got != 1 {
		t.Fatalf("expected 1 connection after remove, got %d", got)
	}

	r.Remove(1, "c2")
	if got := len(r.Lookup(1)); got != 0 {
		t.Fatalf("expected empty lookup after eviction, got %d", got)
	}

	// the whole entry must be gone, not just empty
	if _, ok := r.users.Load(int64(1)); ok {
		t.Fatal("expected user entry to be evicted")
	}
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	r := New()
	r.Remove(42, "nope")

	r.Add(42, "c1", &fakePusher{})
	r.Remove(42, "nope")
	if got := len(r.Lookup(42)); got != 1 {
		t.Fatalf("unknown conn id removal must not touch the set, got %d", got)
	}
}

func TestLookupIsolatedPerUser(t *testing.T) {
	r := New()
	pa := &fakePusher{}
	pb := &fakePusher{}
	r.Add(1, "a", pa)
	r.Add(2, "b", pb)

	for _, p := range r.Lookup(1) {
		p.Push([]byte("for user 1"))
	}

	if len(pb.msgs) != 0 {
		t.Fatalf("user 2 connection received user 1 traffic")
	}
	if len(pa.msgs) != 1 {
		t.Fatalf("user 1 connection expected 1 message, got %d", len(pa.msgs))
	}
}

func TestConcurrentAddRemove(t *testing.T) {
	r := New()
	const users = 8
	const connsPerUser = 50

	var wg sync.WaitGroup
	for u := int64(0); u < users; u++ {
		for c := 0; c < connsPerUser; c++ {
			wg.Add(1)
			go func(u int64, c int) {
				defer wg.Done()
				id := fmt.Sprintf("conn-%d", c)
				r.Add(u, id, &fakePusher{})
				r.Lookup(u)
				r.Remove(u, id)
			}(u, c)
		}
	}
	wg.Wait()

	for u := int64(0); u < users; u++ {
		if got := len(r.Lookup(u)); got != 0 {
			t.Fatalf("user %d: expected 0 connections after churn, got %d", u, got)
		}
	}
}

// Add racing with eviction of the same user must never lose the new
// connection to a dead entry.
func TestAddRacesEviction(t *testing.T) {
	r := New()
	const rounds = 200

	for i := 0; i < rounds; i++ {
		r.Add(7, "old", &fakePusher{})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Remove(7, "old")
		}()
		go func() {
			defer wg.Done()
			r.Add(7, "new", &fakePusher{})
		}()
		wg.Wait()

		found := false
		for range r.Lookup(7) {
			found = true
		}
		if !found {
			t.Fatalf("round %d: new connection lost to eviction race", i)
		}
		r.Remove(7, "new")
	}
}
