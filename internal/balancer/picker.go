package balancer

import (
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"example.com/replicated-kv/common"
)

// Picker is a client-side selection strategy over a static backend list, for
// sessions that run without a balancer service.
type Picker interface {
	Pick() (common.Addr, error)
	Name() string
}

type RandomPicker struct {
	backends []common.Addr
	rnd      *rand.Rand
}

func NewRandom(backends []common.Addr) *RandomPicker {
	return &RandomPicker{
		backends: append([]common.Addr(nil), backends...),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *RandomPicker) Name() string { return "random" }

func (p *RandomPicker) Pick() (common.Addr, error) {
	if len(p.backends) == 0 {
		return common.Addr{}, errors.New("no backends")
	}
	return p.backends[p.rnd.Intn(len(p.backends))], nil
}

type RoundRobinPicker struct {
	backends []common.Addr
	idx      uint64
}

func NewRoundRobin(backends []common.Addr) *RoundRobinPicker {
	return &RoundRobinPicker{
		backends: append([]common.Addr(nil), backends...),
	}
}

func (p *RoundRobinPicker) Name() string { return "round_robin" }

func (p *RoundRobinPicker) Pick() (common.Addr, error) {
	if len(p.backends) == 0 {
		return common.Addr{}, errors.New("no backends")
	}
	i := atomic.AddUint64(&p.idx, 1)
	return p.backends[int(i-1)%len(p.backends)], nil
}
