package node

import (
	"time"

	"example.com/replicated-kv/common"
)

// Service is the RPC surface of a node. Handlers run concurrently on the
// rpc package's per-request goroutines; shared state is serialised by the
// node's lock hierarchy.
type Service struct {
	n *Node
}

// Get reads a key. The leader always answers from its committed state. A
// follower answers locally when the key is clean and it is ready; otherwise
// the read is apportioned to the leader.
func (s *Service) Get(args *common.GetArgs, reply *common.GetReply) error {
	n := s.n
	reply.From = n.id

	if n.leader {
		reply.Value = n.localValue(args.Key)
		return nil
	}
	if n.ready.Load() && n.cleanKey(args.Key) {
		reply.Value = n.localValue(args.Key)
		return nil
	}

	lp := n.leaderHandle()
	if lp == nil {
		return errNoLeader
	}
	var lrep common.GetReply
	if err := lp.call("Node.Get", args, &lrep); err != nil {
		return err
	}
	reply.Value = lrep.Value
	return nil
}

// Put proposes a write. Followers redirect to the leader.
func (s *Service) Put(args *common.PutArgs, reply *common.PutReply) error {
	n := s.n
	if n.leader {
		n.propose(args.Key, args.Value, common.ActionPut)
		return nil
	}
	lp := n.leaderHandle()
	if lp == nil {
		return errNoLeader
	}
	lp.send("Node.Put", args)
	return nil
}

// Remove proposes a delete. Followers redirect to the leader.
func (s *Service) Remove(args *common.RemoveArgs, reply *common.RemoveReply) error {
	n := s.n
	if n.leader {
		n.propose(args.Key, "", common.ActionRemove)
		return nil
	}
	lp := n.leaderHandle()
	if lp == nil {
		return errNoLeader
	}
	lp.send("Node.Remove", args)
	return nil
}

// Stage records a proposed version on a follower and acknowledges it, unless
// it is a DONE replay from the join catch-up.
func (s *Service) Stage(args *common.StageArgs, reply *common.StageReply) error {
	n := s.n
	n.queriesMu.Lock()
	n.st.Stage(args.Key, args.Value, args.Action, args.Qid, 0, time.Now())
	n.queriesMu.Unlock()
	dprintf("[follower %s] staged %s %q qid=%d", n.id, args.Action, args.Key, args.Qid)

	if args.Action != common.ActionDone {
		if lp := n.leaderHandle(); lp != nil {
			lp.send("Node.Acknowledge", &common.AcknowledgeArgs{Qid: args.Qid, Slot: args.Slot})
		}
	}
	return nil
}

// Acknowledge counts a follower's ack. Duplicate acks for a slot are ignored.
func (s *Service) Acknowledge(args *common.AcknowledgeArgs, reply *common.AcknowledgeReply) error {
	s.n.acknowledge(args.Qid, args.Slot)
	return nil
}

// Commit applies pending version Qid.
func (s *Service) Commit(args *common.CommitArgs, reply *common.CommitReply) error {
	n := s.n
	n.queriesMu.Lock()
	if n.leader {
		n.peersMu.Lock()
	}
	n.commitLocked(args.Qid)
	if n.leader {
		n.peersMu.Unlock()
	}
	n.queriesMu.Unlock()
	return nil
}

// Join admits a new follower after replaying all in-flight and committed
// state to it. Only the leader serves joins.
func (s *Service) Join(args *common.JoinArgs, reply *common.JoinReply) error {
	if err := s.n.handleJoin(args.Addr); err != nil {
		reply.OK = false
		return err
	}
	reply.OK = true
	return nil
}

// Ready flips the joiner's serving flag once catch-up is complete.
func (s *Service) Ready(args *common.ReadyArgs, reply *common.ReadyReply) error {
	s.n.ready.Store(true)
	return nil
}

// Alive is the heartbeat: the leader marks the slot live, a follower records
// the pulse and echoes back.
func (s *Service) Alive(args *common.AliveArgs, reply *common.AliveReply) error {
	n := s.n
	if n.leader {
		n.aliveMu.Lock()
		if args.Slot >= 0 && args.Slot < len(n.alive) {
			n.alive[args.Slot] = true
		}
		n.aliveMu.Unlock()
		return nil
	}
	n.pulse.Store(true)
	if lp := n.leaderHandle(); lp != nil {
		lp.send("Node.Alive", args)
	}
	return nil
}

// Check reports whether the given address is still a member.
func (s *Service) Check(args *common.CheckArgs, reply *common.CheckReply) error {
	n := s.n
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	for _, m := range n.members {
		if m == args.Addr {
			reply.Member = true
			return nil
		}
	}
	reply.Member = false
	return nil
}

// Ping is a bare liveness probe.
func (s *Service) Ping(args *common.PingArgs, reply *common.PingReply) error {
	return nil
}
