// Package rendezvous is the tiny startup service that elects the cluster
// leader: the first node to register stays the leader for the lifetime of the
// cluster, and every caller is told who it is.
package rendezvous

import (
	"errors"
	"log"
	"sync"

	"example.com/replicated-kv/common"
)

type Rendezvous struct {
	mu     sync.Mutex
	leader common.Addr
	chosen bool
}

func New() *Rendezvous {
	return &Rendezvous{}
}

// Leader stores the caller's address on the first call and returns the stored
// leader address to every caller.
func (r *Rendezvous) Leader(args *common.LeaderArgs, reply *common.LeaderReply) error {
	if args == nil || args.Addr.Host == "" || args.Addr.Port == 0 {
		return errors.New("invalid leader args")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.chosen {
		r.leader = args.Addr
		r.chosen = true
		log.Printf("[rendezvous] leader elected: %s", r.leader)
	}
	reply.Leader = r.leader
	return nil
}
