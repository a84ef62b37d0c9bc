package node

import (
	"time"

	"example.com/replicated-kv/common"
)

// propose runs the leader half of 2PC for one mutation: allocate a version
// id, stage it locally, and broadcast the stage to every follower. With no
// followers the commit happens inline.
func (n *Node) propose(key, value string, act common.Action) {
	n.queriesMu.Lock()
	defer n.queriesMu.Unlock()
	n.peersMu.Lock()
	defer n.peersMu.Unlock()

	qid := n.nextQuery
	n.nextQuery++
	n.st.Stage(key, value, act, qid, len(n.followers), time.Now())
	dprintf("[leader %s] staged %s %q qid=%d followers=%d", n.id, act, key, qid, len(n.followers))

	if len(n.followers) == 0 {
		n.commitLocked(qid)
		return
	}
	for i, p := range n.followers {
		p.send("Node.Stage", &common.StageArgs{
			Key:    key,
			Value:  value,
			Action: act,
			Qid:    qid,
			Slot:   i,
		})
	}
}

// acknowledge counts one follower's ack for qid and commits once every slot
// has acknowledged. Duplicate acks and acks for unknown ids or stale slots
// are dropped.
func (n *Node) acknowledge(qid uint64, slot int) {
	n.queriesMu.Lock()
	defer n.queriesMu.Unlock()

	q, ok := n.st.Query(qid)
	if !ok || slot < 0 || slot >= len(q.Who) || q.Who[slot] {
		return
	}
	q.Who[slot] = true
	q.AcksRemaining--
	dprintf("[leader %s] ack qid=%d slot=%d remaining=%d", n.id, qid, slot, q.AcksRemaining)
	if q.AcksRemaining == 0 {
		n.peersMu.Lock()
		n.commitLocked(qid)
		n.peersMu.Unlock()
	}
}

// commitLocked applies version qid to the local store and, on the leader,
// broadcasts the commit and records the end-to-end latency.
//
// Requires queriesMu; on the leader, peersMu as well.
func (n *Node) commitLocked(qid uint64) {
	q, ok := n.st.Query(qid)
	if !ok {
		dprintf("[node %s] commit for unknown qid=%d dropped", n.id, qid)
		return
	}
	act := q.Action
	start := q.Start
	if _, ok := n.st.Commit(qid); !ok {
		dprintf("[node %s] commit qid=%d had no record, dropped", n.id, qid)
		return
	}
	dprintf("[node %s] committed %s qid=%d", n.id, act, qid)

	if !n.leader {
		return
	}
	for _, p := range n.followers {
		p.send("Node.Commit", &common.CommitArgs{Qid: qid})
	}
	if act != common.ActionDone {
		n.timesMu.Lock()
		n.times = append(n.times, latencySample{action: act, start: start, elapsed: time.Since(start)})
		n.timesMu.Unlock()
	}
}

// localValue resolves a committed value; missing or uncommitted keys read as
// the zero value.
func (n *Node) localValue(key string) string {
	n.queriesMu.Lock()
	defer n.queriesMu.Unlock()
	v, _ := n.st.Value(key)
	return v
}

// cleanKey reports whether the key has no competing version outstanding.
func (n *Node) cleanKey(key string) bool {
	n.queriesMu.Lock()
	defer n.queriesMu.Unlock()
	return n.st.Clean(key)
}
