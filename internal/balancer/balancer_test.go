package balancer

import (
	"testing"

	"example.com/replicated-kv/common"
)

func addrs(n int) []common.Addr {
	out := make([]common.Addr, n)
	for i := range out {
		out[i] = common.Addr{Host: "10.0.0.1", Port: 9000 + i}
	}
	return out
}

func choose(t *testing.T, b *Balancer, current common.Addr) common.Addr {
	t.Helper()
	var rep common.ChooseNodeReply
	if err := b.ChooseNode(&common.ChooseNodeArgs{Current: current}, &rep); err != nil {
		t.Fatalf("choose node: %v", err)
	}
	return rep.Node
}

func TestSingleBackendShortcut(t *testing.T) {
	b, err := New(addrs(1), Workload{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	want := addrs(1)[0]
	for i := 0; i < 3; i++ {
		if got := choose(t, b, want); got != want {
			t.Fatalf("single backend: got %v, want %v", got, want)
		}
	}
}

func TestLeastUsedSelection(t *testing.T) {
	backends := addrs(3)
	b, err := New(backends, Workload{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	// Three fresh sessions spread over all three backends.
	seen := map[common.Addr]int{}
	for i := 0; i < 3; i++ {
		seen[choose(t, b, common.Addr{})]++
	}
	if len(seen) != 3 {
		t.Fatalf("3 sessions landed on %d backends, want 3", len(seen))
	}
}

func TestChooseNodeExcludesCurrent(t *testing.T) {
	backends := addrs(2)
	b, err := New(backends, Workload{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	first := choose(t, b, common.Addr{})
	for i := 0; i < 5; i++ {
		next := choose(t, b, first)
		if next == first {
			t.Fatalf("balancer handed back the caller's current backend")
		}
		// Moving away releases the old backend, so flapping between the
		// two is the stable outcome here.
		first = next
	}
}

func TestWorkloadValidation(t *testing.T) {
	cases := []struct {
		w  Workload
		ok bool
	}{
		{Workload{PutPercent: 0.1, RemPercent: 0.05}, true},
		{Workload{PutPercent: 1, RemPercent: 0}, true},
		{Workload{PutPercent: -0.1}, false},
		{Workload{PutPercent: 1.1}, false},
		{Workload{PutPercent: 0.6, RemPercent: 0.5}, false},
		{Workload{PutPercent: 0.1, RemPercent: -0.2}, false},
	}
	for _, c := range cases {
		err := c.w.Validate()
		if c.ok && err != nil {
			t.Errorf("%+v: unexpected error %v", c.w, err)
		}
		if !c.ok && err == nil {
			t.Errorf("%+v: expected validation error", c.w)
		}
	}
}

func TestWorkloadParameters(t *testing.T) {
	w := Workload{PutPercent: 0.2, RemPercent: 0.1, DataSize: 512}
	b, err := New(addrs(1), w)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var pp common.GetPutPercentReply
	var rp common.GetRemPercentReply
	var sz common.GetSizeReply
	_ = b.GetPutPercent(&common.GetPutPercentArgs{}, &pp)
	_ = b.GetRemPercent(&common.GetRemPercentArgs{}, &rp)
	_ = b.GetSize(&common.GetSizeArgs{}, &sz)
	if pp.Percent != 0.2 || rp.Percent != 0.1 || sz.Size != 512 {
		t.Fatalf("workload parameters = %v %v %v", pp.Percent, rp.Percent, sz.Size)
	}
}

func TestNewRejectsEmptyBackends(t *testing.T) {
	if _, err := New(nil, Workload{}); err == nil {
		t.Fatalf("expected error for empty backend list")
	}
}

func TestRoundRobinPicker(t *testing.T) {
	backends := addrs(3)
	p := NewRoundRobin(backends)
	for i := 0; i < 6; i++ {
		got, err := p.Pick()
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if want := backends[i%3]; got != want {
			t.Fatalf("pick %d = %v, want %v", i, got, want)
		}
	}

	empty := NewRoundRobin(nil)
	if _, err := empty.Pick(); err == nil {
		t.Fatalf("expected error for empty picker")
	}
}

func TestRandomPicker(t *testing.T) {
	backends := addrs(3)
	known := map[common.Addr]bool{}
	for _, a := range backends {
		known[a] = true
	}

	p := NewRandom(backends)
	for i := 0; i < 20; i++ {
		got, err := p.Pick()
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if !known[got] {
			t.Fatalf("picked unknown backend %v", got)
		}
	}

	empty := NewRandom(nil)
	if _, err := empty.Pick(); err == nil {
		t.Fatalf("expected error for empty picker")
	}
}
