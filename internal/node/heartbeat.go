package node

import (
	"log"
	"time"

	"example.com/replicated-kv/common"
	"example.com/replicated-kv/internal/store"
)

// leaderLoop is the leader's failure detector. Each period it culls the
// followers that stayed silent, resets the liveness bits, pings the
// survivors, and flushes the accumulated commit latencies.
func (n *Node) leaderLoop() {
	ticker := time.NewTicker(n.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
		}

		n.aliveMu.Lock()
		var dead []int
		for i := range n.alive {
			if !n.alive[i] {
				dead = append(dead, i)
			}
			n.alive[i] = false
		}
		n.aliveMu.Unlock()

		if len(dead) > 0 {
			n.cull(dead)
		}

		n.peersMu.Lock()
		for i, p := range n.followers {
			p.send("Node.Alive", &common.AliveArgs{Slot: i})
		}
		n.peersMu.Unlock()

		n.flushTimes()
	}
}

// cull removes the dead follower slots, highest first so the remaining
// indices stay valid, and acknowledges every pending query on their behalf.
// A query whose ack count drops to zero commits immediately.
//
// Nested lock order is queries -> peers -> alive.
func (n *Node) cull(dead []int) {
	n.queriesMu.Lock()
	defer n.queriesMu.Unlock()
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	n.aliveMu.Lock()
	defer n.aliveMu.Unlock()

	for j := len(dead) - 1; j >= 0; j-- {
		i := dead[j]
		if i < 0 || i >= len(n.followers) {
			continue
		}
		log.Printf("[leader %s] culling silent follower %s (slot %d)", n.id, n.members[i], i)
		n.followers[i].close()
		n.followers = append(n.followers[:i], n.followers[i+1:]...)
		n.members = append(n.members[:i], n.members[i+1:]...)
		n.alive = append(n.alive[:i], n.alive[i+1:]...)

		var ripe []uint64
		n.st.ForEachQuery(func(qid uint64, q *store.Query[string]) {
			if i >= len(q.Who) {
				return
			}
			if !q.Who[i] {
				q.AcksRemaining--
			}
			q.Who = append(q.Who[:i], q.Who[i+1:]...)
			if q.AcksRemaining == 0 && q.Action != common.ActionDone {
				ripe = append(ripe, qid)
			}
		})
		for _, qid := range ripe {
			n.commitLocked(qid)
		}
	}
}

// flushTimes drains the latency samples recorded by the commit path.
func (n *Node) flushTimes() {
	n.timesMu.Lock()
	samples := n.times
	n.times = nil
	n.timesMu.Unlock()
	for _, s := range samples {
		log.Printf("[leader %s] %s committed in %.3fms", n.id, s.action, float64(s.elapsed.Microseconds())/1000)
	}
}

// followerLoop watches for the leader's pulse. A silent period triggers a
// membership check; a cull (or an unreachable leader) means the node fell out
// of the cluster and must wipe its state and rejoin.
func (n *Node) followerLoop() {
	ticker := time.NewTicker(n.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
		}

		if n.pulse.Load() {
			n.pulse.Store(false)
			continue
		}

		member := false
		if lp := n.leaderHandle(); lp != nil {
			var rep common.CheckReply
			if err := lp.call("Node.Check", &common.CheckArgs{Addr: n.cfg.Self}, &rep); err == nil {
				member = rep.Member
			}
		}
		if member {
			n.pulse.Store(false)
			continue
		}

		log.Printf("[follower %s] lost the leader, rejoining", n.id)
		n.rejoin()
	}
}

// rejoin wipes all replicated state and goes through the join handshake
// again. The RPC surface stays up; the ready flag gates serving meanwhile.
func (n *Node) rejoin() {
	n.ready.Store(false)

	n.queriesMu.Lock()
	n.st.Reset()
	n.queriesMu.Unlock()

	n.setLeaderPeer(nil)
	n.joinLeader()
}
