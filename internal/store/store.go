// Package store holds the per-key version history and the query table of a
// replica. It is pure bookkeeping: no locking, no RPC. The node serialises
// access under its queries lock.
package store

import (
	"time"

	"example.com/replicated-kv/common"
)

// Record is the version state of one key: the currently committed version id
// (when Valid) and the staged-but-uncommitted version ids in proposal order.
// The committed id is never in Pending.
type Record struct {
	Committed uint64
	Valid     bool
	Pending   []uint64
}

// versionCount is the number of versions the key currently carries, committed
// included. A key is served locally on a follower only when this is <= 1.
func (r *Record) versionCount() int {
	n := len(r.Pending)
	if r.Valid {
		n++
	}
	return n
}

func (r *Record) dropPending(qid uint64) {
	for i, v := range r.Pending {
		if v == qid {
			r.Pending = append(r.Pending[:i], r.Pending[i+1:]...)
			return
		}
	}
}

// Query is a proposed or committed mutation. AcksRemaining, Who and Start are
// meaningful on the leader only: Who has one entry per follower slot and
// AcksRemaining counts the slots still false.
type Query[V any] struct {
	Key           string
	Value         V
	Action        common.Action
	AcksRemaining int
	Who           []bool
	Start         time.Time
}

// Store maps keys to version records and version ids to queries. The two
// tables move together: every id in any record appears in the query table.
type Store[V any] struct {
	records map[string]*Record
	queries map[uint64]*Query[V]
}

func New[V any]() *Store[V] {
	return &Store[V]{
		records: make(map[string]*Record),
		queries: make(map[uint64]*Query[V]),
	}
}

// Stage records version qid for key: appends it to the key's pending list
// (creating the record if needed) and inserts the query. acks is the number
// of follower slots that must acknowledge before commit; followers stage
// with acks == 0.
func (s *Store[V]) Stage(key string, val V, act common.Action, qid uint64, acks int, now time.Time) *Query[V] {
	r, ok := s.records[key]
	if !ok {
		r = &Record{}
		s.records[key] = r
	}
	for _, v := range r.Pending {
		if v == qid {
			return s.queries[qid] // duplicate stage, already tracked
		}
	}
	r.Pending = append(r.Pending, qid)
	q := &Query[V]{
		Key:           key,
		Value:         val,
		Action:        act,
		AcksRemaining: acks,
		Who:           make([]bool, acks),
		Start:         now,
	}
	s.queries[qid] = q
	return q
}

// Commit applies pending version qid and returns the committed query, or
// (nil, false) for an unknown id (protocol violation: drop the message).
func (s *Store[V]) Commit(qid uint64) (*Query[V], bool) {
	q, ok := s.queries[qid]
	if !ok {
		return nil, false
	}
	r, ok := s.records[q.Key]
	if !ok {
		return nil, false
	}
	switch q.Action {
	case common.ActionPut:
		if r.Valid {
			delete(s.queries, r.Committed)
			r.dropPending(r.Committed)
		}
		r.dropPending(qid)
		r.Committed = qid
		r.Valid = true
		// Keep the record alive for version-id reads.
		q.Action = common.ActionDone
	case common.ActionRemove:
		if r.Valid {
			delete(s.queries, r.Committed)
			r.dropPending(r.Committed)
		}
		delete(s.queries, qid)
		r.dropPending(qid)
		if len(r.Pending) == 0 {
			delete(s.records, q.Key)
		} else {
			r.Valid = false
		}
	case common.ActionDone:
		// Join replay of an already committed value.
		r.dropPending(qid)
		r.Committed = qid
		r.Valid = true
	}
	return q, true
}

// Value resolves the committed value of key. Missing or uncommitted keys read
// as the zero value.
func (s *Store[V]) Value(key string) (V, bool) {
	var zero V
	r, ok := s.records[key]
	if !ok || !r.Valid {
		return zero, false
	}
	q, ok := s.queries[r.Committed]
	if !ok {
		return zero, false
	}
	return q.Value, true
}

// Clean reports whether key has at most one version outstanding, in which
// case a follower may answer a read from its own committed value.
func (s *Store[V]) Clean(key string) bool {
	r, ok := s.records[key]
	if !ok {
		return true
	}
	return r.versionCount() <= 1
}

// Query looks up a query by version id.
func (s *Store[V]) Query(qid uint64) (*Query[V], bool) {
	q, ok := s.queries[qid]
	return q, ok
}

// Record looks up the version record of a key.
func (s *Store[V]) Record(key string) (*Record, bool) {
	r, ok := s.records[key]
	return r, ok
}

// ForEachQuery visits every query in the table. The order is unspecified.
// The callback must not add or delete queries.
func (s *Store[V]) ForEachQuery(fn func(qid uint64, q *Query[V])) {
	for qid, q := range s.queries {
		fn(qid, q)
	}
}

// ForEachCommitted visits the committed version id of every valid record.
func (s *Store[V]) ForEachCommitted(fn func(key string, qid uint64)) {
	for key, r := range s.records {
		if r.Valid {
			fn(key, r.Committed)
		}
	}
}

// Len is the number of live keys.
func (s *Store[V]) Len() int {
	return len(s.records)
}

// Queries is the number of tracked queries, pending and DONE.
func (s *Store[V]) Queries() int {
	return len(s.queries)
}

// Reset wipes all state. Used when a follower restarts its join.
func (s *Store[V]) Reset() {
	s.records = make(map[string]*Record)
	s.queries = make(map[uint64]*Query[V])
}
