// Package balancer is the front end that spreads benchmark clients over the
// replica set: least-used backend selection plus the workload parameters
// clients ask for once per session.
package balancer

import (
	"errors"
	"sync"

	"example.com/replicated-kv/common"
)

// Workload is the benchmark mix handed to clients.
type Workload struct {
	PutPercent float64
	RemPercent float64
	DataSize   uint64
}

// Validate rejects mixes that do not describe a probability split.
func (w Workload) Validate() error {
	if w.PutPercent < 0 || w.PutPercent > 1 {
		return errors.New("percentage of PUTs must be between 0 and 1")
	}
	if w.RemPercent < 0 || w.PutPercent+w.RemPercent > 1 {
		return errors.New("percentage of REMOVEs must be between 0 and 1 and (PUTs + REMOVEs) must be <= 1")
	}
	return nil
}

// Balancer keeps per-backend use counts and always hands out the least-used
// backend different from the caller's current one.
type Balancer struct {
	workload Workload

	mu       sync.Mutex
	backends []common.Addr
	used     []int
}

func New(backends []common.Addr, w Workload) (*Balancer, error) {
	if len(backends) == 0 {
		return nil, errors.New("at least one backend is required")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Balancer{
		workload: w,
		backends: append([]common.Addr(nil), backends...),
		used:     make([]int, len(backends)),
	}, nil
}

// ChooseNode releases the caller's current backend (its use count drops) and
// picks the least-used backend that is not the current one.
func (b *Balancer) ChooseNode(args *common.ChooseNodeArgs, reply *common.ChooseNodeReply) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.backends) == 1 {
		reply.Node = b.backends[0]
		return nil
	}

	curr := -1
	if args.Current.Host != "" {
		for i, s := range b.backends {
			if s == args.Current {
				curr = i
				break
			}
		}
		if curr >= 0 && b.used[curr] > 0 {
			b.used[curr]--
		}
	}

	best := -1
	for i := range b.backends {
		if i == curr {
			continue
		}
		if best < 0 || b.used[i] < b.used[best] {
			best = i
		}
	}
	b.used[best]++
	reply.Node = b.backends[best]
	return nil
}

func (b *Balancer) GetPutPercent(args *common.GetPutPercentArgs, reply *common.GetPutPercentReply) error {
	reply.Percent = b.workload.PutPercent
	return nil
}

func (b *Balancer) GetRemPercent(args *common.GetRemPercentArgs, reply *common.GetRemPercentReply) error {
	reply.Percent = b.workload.RemPercent
	return nil
}

func (b *Balancer) GetSize(args *common.GetSizeArgs, reply *common.GetSizeReply) error {
	reply.Size = b.workload.DataSize
	return nil
}
