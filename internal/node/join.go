package node

import (
	"errors"
	"log"

	"example.com/replicated-kv/common"
	"example.com/replicated-kv/internal/store"
)

// handleJoin brings a new follower up to date atomically with respect to new
// proposals: while the queries and peers locks are held, every tracked query
// is replayed (committed records as DONE, pending ones as outstanding acks),
// then every committed version id, and finally the joiner is admitted to the
// member list and told it is ready.
//
// Any stage or commit timeout aborts the join: the leader's bookkeeping is
// rolled back and the handle dropped. The joiner retries.
func (n *Node) handleJoin(addr common.Addr) error {
	if !n.leader {
		return errors.New("join sent to a non-leader")
	}

	p, err := dialPeer(addr, n.cfg.CallTimeout)
	if err != nil {
		return err
	}

	n.queriesMu.Lock()
	defer n.queriesMu.Unlock()
	n.peersMu.Lock()
	defer n.peersMu.Unlock()

	// A joiner retries until ready flips; a repeated join from a current
	// member just gets told again.
	for i, m := range n.members {
		if m == addr {
			p.close()
			n.followers[i].send("Node.Ready", &common.ReadyArgs{})
			return nil
		}
	}

	slot := len(n.followers)
	var extended []uint64
	var failed error

	n.st.ForEachQuery(func(qid uint64, q *store.Query[string]) {
		if failed != nil {
			return
		}
		if q.Action == common.ActionDone {
			q.Who = append(q.Who, true)
		} else {
			q.Who = append(q.Who, false)
			q.AcksRemaining++
		}
		extended = append(extended, qid)
		err := p.call("Node.Stage", &common.StageArgs{
			Key:    q.Key,
			Value:  q.Value,
			Action: q.Action,
			Qid:    qid,
			Slot:   slot,
		}, &common.StageReply{})
		if err != nil {
			failed = err
		}
	})

	if failed == nil {
		n.st.ForEachCommitted(func(key string, qid uint64) {
			if failed != nil {
				return
			}
			if err := p.call("Node.Commit", &common.CommitArgs{Qid: qid}, &common.CommitReply{}); err != nil {
				failed = err
			}
		})
	}

	if failed != nil {
		// Roll back the slot extension on every query we touched.
		for _, qid := range extended {
			q, ok := n.st.Query(qid)
			if !ok || len(q.Who) != slot+1 {
				continue
			}
			if !q.Who[slot] {
				q.AcksRemaining--
			}
			q.Who = q.Who[:slot]
		}
		p.close()
		log.Printf("[leader %s] join of %s aborted: %v", n.id, addr, failed)
		return failed
	}

	n.followers = append(n.followers, p)
	n.members = append(n.members, addr)
	n.aliveMu.Lock()
	n.alive = append(n.alive, true)
	n.aliveMu.Unlock()

	p.send("Node.Ready", &common.ReadyArgs{})
	log.Printf("[leader %s] follower %s joined at slot %d", n.id, addr, slot)
	return nil
}
