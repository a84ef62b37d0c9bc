package store

import (
	"testing"
	"time"

	"example.com/replicated-kv/common"
)

func stagePut(t *testing.T, s *Store[string], key, val string, qid uint64, acks int) {
	t.Helper()
	s.Stage(key, val, common.ActionPut, qid, acks, time.Now())
}

func TestPutCommitLifecycle(t *testing.T) {
	s := New[string]()

	stagePut(t, s, "a", "1", 0, 0)
	if v, ok := s.Value("a"); ok || v != "" {
		t.Fatalf("uncommitted key should read as zero value, got %q ok=%v", v, ok)
	}

	if _, ok := s.Commit(0); !ok {
		t.Fatalf("commit of staged qid failed")
	}
	if v, ok := s.Value("a"); !ok || v != "1" {
		t.Fatalf("committed value = %q ok=%v, want \"1\"", v, ok)
	}

	r, ok := s.Record("a")
	if !ok {
		t.Fatalf("record missing after commit")
	}
	if !r.Valid || r.Committed != 0 || len(r.Pending) != 0 {
		t.Fatalf("record after commit = %+v, want valid committed=0 no pending", r)
	}

	q, ok := s.Query(0)
	if !ok || q.Action != common.ActionDone {
		t.Fatalf("committed PUT should be retained as DONE, got %+v ok=%v", q, ok)
	}
}

func TestCommitPrunesSupersededVersion(t *testing.T) {
	s := New[string]()
	stagePut(t, s, "k", "v1", 0, 0)
	s.Commit(0)
	stagePut(t, s, "k", "v2", 1, 0)
	s.Commit(1)

	if v, _ := s.Value("k"); v != "v2" {
		t.Fatalf("value = %q, want v2", v)
	}
	if _, ok := s.Query(0); ok {
		t.Fatalf("superseded committed record should be pruned")
	}
	if n := s.Queries(); n != 1 {
		t.Fatalf("query table has %d entries, want exactly the surviving DONE record", n)
	}
}

func TestRemoveErasesKey(t *testing.T) {
	s := New[string]()
	stagePut(t, s, "k", "v", 0, 0)
	s.Commit(0)
	s.Stage("k", "", common.ActionRemove, 1, 0, time.Now())
	s.Commit(1)

	if _, ok := s.Record("k"); ok {
		t.Fatalf("key should be erased once no versions remain")
	}
	if n := s.Queries(); n != 0 {
		t.Fatalf("query table should be empty, has %d", n)
	}
	if v, ok := s.Value("k"); ok || v != "" {
		t.Fatalf("removed key should read as zero value")
	}
}

func TestRemoveBetweenPendingPuts(t *testing.T) {
	s := New[string]()
	stagePut(t, s, "k", "v1", 0, 0)
	s.Stage("k", "", common.ActionRemove, 1, 0, time.Now())
	stagePut(t, s, "k", "v3", 2, 0)

	s.Commit(0)
	if v, _ := s.Value("k"); v != "v1" {
		t.Fatalf("value = %q, want v1", v)
	}

	// The REMOVE prunes the intervening committed version but leaves the
	// later pending PUT to commit normally.
	s.Commit(1)
	r, ok := s.Record("k")
	if !ok {
		t.Fatalf("key with a pending version must survive the remove")
	}
	if r.Valid {
		t.Fatalf("record should have no committed version after remove")
	}
	if len(r.Pending) != 1 || r.Pending[0] != 2 {
		t.Fatalf("pending = %v, want [2]", r.Pending)
	}

	s.Commit(2)
	if v, _ := s.Value("k"); v != "v3" {
		t.Fatalf("value = %q, want v3", v)
	}
	if n := s.Queries(); n != 1 {
		t.Fatalf("query table has %d entries, want 1", n)
	}
}

func TestClean(t *testing.T) {
	s := New[string]()
	if !s.Clean("missing") {
		t.Fatalf("absent key must be clean")
	}

	stagePut(t, s, "k", "v1", 0, 0)
	if !s.Clean("k") {
		t.Fatalf("single staged version must be clean")
	}

	s.Commit(0)
	if !s.Clean("k") {
		t.Fatalf("committed key with no pending versions must be clean")
	}

	stagePut(t, s, "k", "v2", 1, 0)
	if s.Clean("k") {
		t.Fatalf("committed key with an outstanding write must not be clean")
	}

	s.Commit(1)
	if !s.Clean("k") {
		t.Fatalf("key must be clean again after the write commits")
	}
}

func TestCommitUnknownQidDropped(t *testing.T) {
	s := New[string]()
	if _, ok := s.Commit(42); ok {
		t.Fatalf("commit of unknown qid must be dropped")
	}
}

func TestDuplicateStageIgnored(t *testing.T) {
	s := New[string]()
	stagePut(t, s, "k", "v", 0, 0)
	stagePut(t, s, "k", "v", 0, 0)
	r, _ := s.Record("k")
	if len(r.Pending) != 1 {
		t.Fatalf("pending = %v, duplicate stage must not add a version", r.Pending)
	}
}

func TestDoneReplay(t *testing.T) {
	s := New[string]()
	// A joiner receives committed state as DONE-tagged stages followed by
	// commits of the same ids.
	s.Stage("k", "v", common.ActionDone, 7, 0, time.Now())
	s.Commit(7)

	if v, ok := s.Value("k"); !ok || v != "v" {
		t.Fatalf("replayed value = %q ok=%v, want v", v, ok)
	}
	if !s.Clean("k") {
		t.Fatalf("replayed key must be clean")
	}
}

// Every version id reachable from a record must resolve in the query table.
func TestQueryTableCoversRecords(t *testing.T) {
	s := New[string]()
	stagePut(t, s, "a", "1", 0, 0)
	stagePut(t, s, "a", "2", 1, 0)
	stagePut(t, s, "b", "3", 2, 0)
	s.Commit(0)
	s.Commit(2)

	check := func(key string) {
		r, ok := s.Record(key)
		if !ok {
			t.Fatalf("record %q missing", key)
		}
		if r.Valid {
			if _, ok := s.Query(r.Committed); !ok {
				t.Fatalf("committed id %d of %q not in query table", r.Committed, key)
			}
		}
		for _, qid := range r.Pending {
			if _, ok := s.Query(qid); !ok {
				t.Fatalf("pending id %d of %q not in query table", qid, key)
			}
		}
	}
	check("a")
	check("b")
}

func TestGenericValueType(t *testing.T) {
	s := New[int]()
	s.Stage("n", 42, common.ActionPut, 0, 0, time.Now())
	s.Commit(0)
	if v, ok := s.Value("n"); !ok || v != 42 {
		t.Fatalf("value = %d ok=%v, want 42", v, ok)
	}
	if v, ok := s.Value("missing"); ok || v != 0 {
		t.Fatalf("missing key must read as zero, got %d", v)
	}
}

func TestReset(t *testing.T) {
	s := New[string]()
	stagePut(t, s, "k", "v", 0, 0)
	s.Commit(0)
	s.Reset()
	if s.Len() != 0 || s.Queries() != 0 {
		t.Fatalf("reset must wipe all state")
	}
}
