package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/rpc"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/replicated-kv/common"
	"example.com/replicated-kv/internal/balancer"
)

// opStats accumulates latency figures for one verb between reports.
type opStats struct {
	n        int
	total    time.Duration
	min, max time.Duration
}

func (s *opStats) record(d time.Duration) {
	if s.n == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.n++
	s.total += d
}

func (s *opStats) String() string {
	if s.n == 0 {
		return "-"
	}
	return fmt.Sprintf("min=%v avg=%v max=%v n=%d", s.min, s.total/time.Duration(s.n), s.max, s.n)
}

func (s *opStats) reset() { *s = opStats{} }

func randomData(size int, rnd *rand.Rand) string {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte('a' + rnd.Intn(26))
	}
	return string(b)
}

// pickKey returns a workload key: mostly existing keys, occasionally fresh
// ones, bounded at 100 distinct keys. old asks for an existing key only, so
// removes hit something.
func pickKey(keys *[]string, rnd *rand.Rand, old bool) string {
	prob := 0.05
	if len(*keys) <= 10 {
		prob = 1
	}
	if len(*keys) >= 100 || old {
		prob = 0
	}
	if len(*keys) == 0 || rnd.Float64() < prob {
		k := randomData(16, rnd)
		*keys = append(*keys, k)
		return k
	}
	return (*keys)[rnd.Intn(len(*keys))]
}

// runOnce performs a single operation against the chosen node, for smoke use.
func runOnce(server *rpc.Client, op string) error {
	fields := strings.Fields(op)
	if len(fields) == 0 {
		return fmt.Errorf("empty -once operation")
	}
	switch fields[0] {
	case "put":
		if len(fields) != 3 {
			return fmt.Errorf(`usage: -once "put <key> <value>"`)
		}
		return server.Call("Node.Put", &common.PutArgs{Key: fields[1], Value: fields[2]}, &common.PutReply{})
	case "get":
		if len(fields) != 2 {
			return fmt.Errorf(`usage: -once "get <key>"`)
		}
		var rep common.GetReply
		if err := server.Call("Node.Get", &common.GetArgs{Key: fields[1]}, &rep); err != nil {
			return err
		}
		fmt.Printf("> %s : %s\n", fields[1], rep.Value)
		return nil
	case "remove":
		if len(fields) != 2 {
			return fmt.Errorf(`usage: -once "remove <key>"`)
		}
		return server.Call("Node.Remove", &common.RemoveArgs{Key: fields[1]}, &common.RemoveReply{})
	}
	return fmt.Errorf("invalid action: %s", fields[0])
}

func main() {
	balancerAddr := flag.String("balancer", "", "balancer address host:port")
	nodesFlag := flag.String("nodes", "", "comma-separated node addresses (direct mode, no balancer)")
	pickerFlag := flag.String("picker", "rr", "client-side picker for -nodes mode: rr|random")
	putPct := flag.Float64("put", 0.1, "put fraction (direct mode)")
	remPct := flag.Float64("rem", 0.0, "remove fraction (direct mode)")
	dataSize := flag.Int("size", 100, "value size in bytes (direct mode)")
	report := flag.Duration("report", time.Second, "stats report interval")
	count := flag.Int("n", 0, "number of operations (0 = run forever)")
	once := flag.String("once", "", `single operation and exit: "put <key> <value>", "get <key>" or "remove <key>"`)
	flag.Parse()

	id := uuid.NewString()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	var (
		bal     *rpc.Client
		picker  balancer.Picker
		current common.Addr
		err     error
	)

	switch {
	case *balancerAddr != "":
		bal, err = rpc.DialHTTP("tcp", *balancerAddr)
		if err != nil {
			log.Fatalf("dial balancer: %v", err)
		}
		var pp common.GetPutPercentReply
		var rp common.GetRemPercentReply
		var sz common.GetSizeReply
		if err := bal.Call("Balancer.GetPutPercent", &common.GetPutPercentArgs{}, &pp); err != nil {
			log.Fatalf("get put percent: %v", err)
		}
		if err := bal.Call("Balancer.GetRemPercent", &common.GetRemPercentArgs{}, &rp); err != nil {
			log.Fatalf("get rem percent: %v", err)
		}
		if err := bal.Call("Balancer.GetSize", &common.GetSizeArgs{}, &sz); err != nil {
			log.Fatalf("get size: %v", err)
		}
		*putPct, *remPct, *dataSize = pp.Percent, rp.Percent, int(sz.Size)
	case *nodesFlag != "":
		var nodes []common.Addr
		for _, s := range strings.Split(*nodesFlag, ",") {
			a, err := common.ParseAddr(strings.TrimSpace(s))
			if err != nil {
				log.Fatalf("bad -nodes entry: %v", err)
			}
			nodes = append(nodes, a)
		}
		switch *pickerFlag {
		case "rr":
			picker = balancer.NewRoundRobin(nodes)
		case "random":
			picker = balancer.NewRandom(nodes)
		default:
			log.Fatalf("unknown picker %q", *pickerFlag)
		}
	default:
		log.Fatalf("one of -balancer or -nodes is required")
	}

	chooseNode := func() (common.Addr, error) {
		if picker != nil {
			return picker.Pick()
		}
		var rep common.ChooseNodeReply
		if err := bal.Call("Balancer.ChooseNode", &common.ChooseNodeArgs{Current: current}, &rep); err != nil {
			return common.Addr{}, err
		}
		return rep.Node, nil
	}

	connect := func() *rpc.Client {
		for {
			addr, err := chooseNode()
			if err != nil {
				log.Fatalf("choose node: %v", err)
			}
			c, err := rpc.DialHTTP("tcp", addr.String())
			if err != nil {
				log.Printf("[client %s] dial %s: %v", id, addr, err)
				time.Sleep(time.Second)
				continue
			}
			current = addr
			log.Printf("[client %s] using node %s", id, addr)
			return c
		}
	}

	server := connect()

	if *once != "" {
		if err := runOnce(server, *once); err != nil {
			log.Fatalf("[client %s] %v", id, err)
		}
		return
	}

	log.Printf("[client %s] workload: put=%.2f rem=%.2f size=%d", id, *putPct, *remPct, *dataSize)

	var keys []string
	var putS, remS, getS opStats
	lastReport := time.Now()

	for i := 0; *count == 0 || i < *count; i++ {
		prob := rnd.Float64()
		var callErr error
		start := time.Now()
		switch {
		case prob < *putPct:
			args := &common.PutArgs{Key: pickKey(&keys, rnd, false), Value: randomData(*dataSize, rnd)}
			callErr = server.Call("Node.Put", args, &common.PutReply{})
			if callErr == nil {
				putS.record(time.Since(start))
			}
		case prob-*putPct < *remPct:
			if len(keys) == 0 {
				continue
			}
			args := &common.RemoveArgs{Key: pickKey(&keys, rnd, true)}
			callErr = server.Call("Node.Remove", args, &common.RemoveReply{})
			if callErr == nil {
				remS.record(time.Since(start))
			}
		default:
			args := &common.GetArgs{Key: pickKey(&keys, rnd, false)}
			callErr = server.Call("Node.Get", args, &common.GetReply{})
			if callErr == nil {
				getS.record(time.Since(start))
			}
		}

		if callErr != nil {
			log.Printf("[client %s] call failed on %s: %v, reconnecting", id, current, callErr)
			_ = server.Close()
			server = connect()
			continue
		}

		if time.Since(lastReport) >= *report {
			fmt.Printf("PUT : %s\nREM : %s\nGET : %s\n", &putS, &remS, &getS)
			putS.reset()
			remS.reset()
			getS.reset()
			lastReport = time.Now()
		}
	}
}
