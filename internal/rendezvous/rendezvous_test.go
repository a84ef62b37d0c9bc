package rendezvous

import (
	"testing"

	"example.com/replicated-kv/common"
)

func TestFirstCallerBecomesLeader(t *testing.T) {
	r := New()
	first := common.Addr{Host: "10.0.0.1", Port: 9001}
	second := common.Addr{Host: "10.0.0.2", Port: 9002}

	var rep common.LeaderReply
	if err := r.Leader(&common.LeaderArgs{Addr: first}, &rep); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if rep.Leader != first {
		t.Fatalf("first caller got %v, want itself", rep.Leader)
	}

	if err := r.Leader(&common.LeaderArgs{Addr: second}, &rep); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if rep.Leader != first {
		t.Fatalf("second caller got %v, want the stored leader %v", rep.Leader, first)
	}

	// The leader asking again still gets itself.
	if err := r.Leader(&common.LeaderArgs{Addr: first}, &rep); err != nil {
		t.Fatalf("repeat call: %v", err)
	}
	if rep.Leader != first {
		t.Fatalf("repeat call got %v, want %v", rep.Leader, first)
	}
}

func TestLeaderRejectsInvalidArgs(t *testing.T) {
	r := New()
	var rep common.LeaderReply
	if err := r.Leader(&common.LeaderArgs{}, &rep); err == nil {
		t.Fatalf("expected error for empty address")
	}
	if err := r.Leader(&common.LeaderArgs{Addr: common.Addr{Host: "h"}}, &rep); err == nil {
		t.Fatalf("expected error for missing port")
	}
}
