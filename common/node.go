package common

// Get reads a key. Resolved locally when the key is clean, otherwise the
// follower defers to the leader (apportioned query).
type GetArgs struct {
	Key string
}

type GetReply struct {
	Value string
	From  string // instance id that answered
}

// Put writes/overwrites a key. Followers redirect to the leader.
type PutArgs struct {
	Key   string
	Value string
}

type PutReply struct{}

// Remove deletes a key. Followers redirect to the leader.
type RemoveArgs struct {
	Key string
}

type RemoveReply struct{}

// Stage is the first phase of 2PC (leader -> follower): propose version Qid
// for Key. Slot is the follower's index in the leader's member vector, echoed
// back in the acknowledgment.
type StageArgs struct {
	Key    string
	Value  string
	Action Action
	Qid    uint64
	Slot   int
}

type StageReply struct{}

// Acknowledge reports a staged version back to the leader (follower -> leader).
type AcknowledgeArgs struct {
	Qid  uint64
	Slot int
}

type AcknowledgeReply struct{}

// Commit applies pending version Qid (leader -> follower, or inline).
type CommitArgs struct {
	Qid uint64
}

type CommitReply struct{}

// Join asks the leader to admit the caller as a follower and replay state.
type JoinArgs struct {
	Addr Addr
}

type JoinReply struct {
	OK bool
}

// Ready tells a joiner that catch-up is complete and it may serve.
type ReadyArgs struct{}

type ReadyReply struct{}

// Alive is the heartbeat. The leader sends it with the follower's slot; the
// follower echoes it back.
type AliveArgs struct {
	Slot int
}

type AliveReply struct{}

// Check asks the leader whether the caller is still a member.
type CheckArgs struct {
	Addr Addr
}

type CheckReply struct {
	Member bool
}

// Ping is a bare liveness probe.
type PingArgs struct{}

type PingReply struct{}
