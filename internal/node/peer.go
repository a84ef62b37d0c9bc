package node

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"net/rpc"
	"time"

	"example.com/replicated-kv/common"
)

var errCallTimeout = errors.New("rpc call timed out")

// peer is an owned outbound connection to another node. Calls are blocking
// with a per-call timeout; sends are fire-and-forget. Slot identity, not the
// connection, identifies the peer at the protocol level.
type peer struct {
	addr    common.Addr
	timeout time.Duration
	c       *rpc.Client
}

// dialPeer connects to the RPC endpoint of addr. The timeout covers the TCP
// dial and the HTTP CONNECT handshake.
func dialPeer(addr common.Addr, timeout time.Duration) (*peer, error) {
	conn, err := net.DialTimeout("tcp", addr.String(), timeout)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := io.WriteString(conn, "CONNECT "+rpc.DefaultRPCPath+" HTTP/1.0\n\n"); err != nil {
		conn.Close()
		return nil, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: http.MethodConnect})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if resp.Status != "200 Connected to Go RPC" {
		conn.Close()
		return nil, errors.New("unexpected rpc handshake response: " + resp.Status)
	}
	_ = conn.SetDeadline(time.Time{})
	return &peer{addr: addr, timeout: timeout, c: rpc.NewClient(conn)}, nil
}

// call invokes method and waits for the reply or the per-call timeout. A
// timeout means the peer may or may not have acted; the caller treats it as
// failure of the peer for this request only.
func (p *peer) call(method string, args, reply any) error {
	call := p.c.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		return call.Error
	case <-time.After(p.timeout):
		return errCallTimeout
	}
}

// send fires method without waiting for a reply.
func (p *peer) send(method string, args any) {
	p.c.Go(method, args, nil, make(chan *rpc.Call, 1))
}

func (p *peer) close() {
	_ = p.c.Close()
}
