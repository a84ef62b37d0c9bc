// Package node implements a replica of the replicated key-value store: the
// two-phase-commit coordinator with apportioned queries, the join/catch-up
// path, and the heartbeat failure detector.
package node

import (
	"errors"
	"log"
	"net"
	"net/http"
	"net/rpc"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"example.com/replicated-kv/common"
	"example.com/replicated-kv/internal/store"
)

const Debug = false

func dprintf(format string, a ...any) {
	if Debug {
		log.Printf(format, a...)
	}
}

const (
	defaultHeartbeat   = 5 * time.Second
	defaultCallTimeout = 3 * time.Second
	readyPollInterval  = 100 * time.Millisecond
)

type Config struct {
	Self       common.Addr // public address other nodes dial
	Listen     string      // listen address; defaults to Self
	Rendezvous common.Addr

	Heartbeat   time.Duration // failure detector period; defaults to 5s
	CallTimeout time.Duration // per outbound blocking call; defaults to 3s
}

// Node is one replica. Exactly one node per cluster runs as the leader,
// decided once at startup through the rendezvous service.
//
// Lock order, top to bottom, is queries -> peers -> alive. Multi-lock
// sections must take them in that order; single locks may be taken alone.
type Node struct {
	id  string
	cfg Config

	leader     bool        // fixed after bootstrap
	leaderAddr common.Addr // fixed after bootstrap (followers)

	ready atomic.Bool // follower: catch-up complete, may serve
	pulse atomic.Bool // follower: heard from the leader this period

	queriesMu sync.Mutex // guards st and nextQuery
	st        *store.Store[string]
	nextQuery uint64 // leader only

	peersMu    sync.Mutex
	followers  []*peer       // leader: outbound handles, slot-indexed
	members    []common.Addr // leader: member addresses, slot-indexed
	leaderPeer *peer         // follower: outbound handle to the leader

	aliveMu sync.Mutex
	alive   []bool // leader: did slot i respond this period?

	timesMu sync.Mutex
	times   []latencySample

	httpSrv  *http.Server
	ln       net.Listener
	stopCh   chan struct{}
	stopOnce sync.Once
}

type latencySample struct {
	action  common.Action
	start   time.Time
	elapsed time.Duration
}

func New(cfg Config) *Node {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Listen == "" {
		cfg.Listen = cfg.Self.String()
	}
	return &Node{
		id:     uuid.NewString(),
		cfg:    cfg,
		st:     store.New[string](),
		stopCh: make(chan struct{}),
	}
}

func (n *Node) ID() string { return n.id }

// Start listens, mounts the RPC surface, and bootstraps the node's role. It
// returns once the node is serving; a follower's join completes in the
// background and flips the ready flag.
func (n *Node) Start() error {
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Node", &Service{n: n}); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle(rpc.DefaultRPCPath, rpcServer)

	ln, err := net.Listen("tcp", n.cfg.Listen)
	if err != nil {
		return err
	}
	n.ln = ln
	n.httpSrv = &http.Server{Handler: r}
	go func() {
		if err := n.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[node %s] serve: %v", n.id, err)
		}
	}()

	return n.bootstrap()
}

// Stop shuts the node down. Only used by tests and signal handling; a node in
// normal operation loops forever.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		if n.httpSrv != nil {
			_ = n.httpSrv.Close()
		}
		n.peersMu.Lock()
		for _, p := range n.followers {
			p.close()
		}
		n.followers = nil
		if n.leaderPeer != nil {
			n.leaderPeer.close()
			n.leaderPeer = nil
		}
		n.peersMu.Unlock()
	})
}

func (n *Node) stopped() bool {
	select {
	case <-n.stopCh:
		return true
	default:
		return false
	}
}

// IsLeader reports the role decided at bootstrap.
func (n *Node) IsLeader() bool { return n.leader }

// Ready reports whether the node is caught up and serving.
func (n *Node) Ready() bool { return n.ready.Load() }

// bootstrap contacts the rendezvous service with the node's own address and
// becomes the leader if the stored pair matches, otherwise joins the leader.
func (n *Node) bootstrap() error {
	rz, err := dialPeer(n.cfg.Rendezvous, n.cfg.CallTimeout)
	if err != nil {
		return err
	}
	defer rz.close()

	var reply common.LeaderReply
	if err := rz.call("Rendezvous.Leader", &common.LeaderArgs{Addr: n.cfg.Self}, &reply); err != nil {
		return err
	}

	if reply.Leader == n.cfg.Self {
		n.leader = true
		n.ready.Store(true)
		n.pulse.Store(true)
		log.Printf("[leader %s] serving on %s", n.id, n.cfg.Self)
		go n.leaderLoop()
		return nil
	}

	n.leaderAddr = reply.Leader
	log.Printf("[follower %s] serving on %s, leader is %s", n.id, n.cfg.Self, n.leaderAddr)
	go func() {
		n.joinLeader()
		n.followerLoop()
	}()
	return nil
}

// leaderHandle returns the follower's connection to the leader, or nil while
// reconnecting.
func (n *Node) leaderHandle() *peer {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()
	return n.leaderPeer
}

func (n *Node) setLeaderPeer(p *peer) {
	n.peersMu.Lock()
	if n.leaderPeer != nil {
		n.leaderPeer.close()
	}
	n.leaderPeer = p
	n.peersMu.Unlock()
}

// joinLeader dials the leader and issues join requests until the leader calls
// ready back. A join the leader aborted (catch-up timeout) is simply retried
// next round.
func (n *Node) joinLeader() {
	for !n.stopped() {
		lp := n.leaderHandle()
		if lp == nil {
			p, err := dialPeer(n.leaderAddr, n.cfg.CallTimeout)
			if err != nil {
				dprintf("[follower %s] dial leader: %v", n.id, err)
				n.sleep(n.cfg.Heartbeat)
				continue
			}
			n.setLeaderPeer(p)
			lp = p
		}
		lp.send("Node.Join", &common.JoinArgs{Addr: n.cfg.Self})
		if n.waitReady(2 * n.cfg.Heartbeat) {
			n.pulse.Store(true)
			log.Printf("[follower %s] joined leader %s", n.id, n.leaderAddr)
			return
		}
	}
}

// waitReady polls the ready flag until it flips or the deadline passes.
func (n *Node) waitReady(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if n.ready.Load() {
			return true
		}
		if n.stopped() {
			return false
		}
		time.Sleep(readyPollInterval)
	}
	return n.ready.Load()
}

func (n *Node) sleep(d time.Duration) {
	select {
	case <-n.stopCh:
	case <-time.After(d):
	}
}

var errNoLeader = errors.New("no connection to the leader")
