package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"example.com/replicated-kv/common"
	"example.com/replicated-kv/internal/node"
	"example.com/replicated-kv/internal/util"
)

func usage() {
	fmt.Fprintf(os.Stderr,
		"Usage: %s <self_address> <self_port> <rendezvous_address> <rendezvous_port>\n"+
			"   or: %s -addr host:port -rendezvous host:port [-listen addr]\n",
		os.Args[0], os.Args[0])
	os.Exit(1)
}

func main() {
	addrFlag := flag.String("addr", util.Env("NODE_ADDR", ""), "public address other nodes dial (host:port)")
	listen := flag.String("listen", util.Env("NODE_LISTEN", ""), "listen address (default: public address)")
	rendezvousFlag := flag.String("rendezvous", util.Env("RENDEZVOUS_ADDR", ""), "rendezvous address (host:port)")
	flag.Parse()

	var self, rz common.Addr
	var err error
	switch flag.NArg() {
	case 0:
		if *addrFlag == "" || *rendezvousFlag == "" {
			usage()
		}
		if self, err = common.ParseAddr(*addrFlag); err != nil {
			log.Fatalf("bad -addr: %v", err)
		}
		if rz, err = common.ParseAddr(*rendezvousFlag); err != nil {
			log.Fatalf("bad -rendezvous: %v", err)
		}
	case 4:
		selfPort, err1 := strconv.Atoi(flag.Arg(1))
		rzPort, err2 := strconv.Atoi(flag.Arg(3))
		if err1 != nil || err2 != nil {
			usage()
		}
		self = common.Addr{Host: flag.Arg(0), Port: selfPort}
		rz = common.Addr{Host: flag.Arg(2), Port: rzPort}
	default:
		usage()
	}

	n := node.New(node.Config{
		Self:        self,
		Listen:      *listen,
		Rendezvous:  rz,
		Heartbeat:   util.EnvDuration("NODE_HEARTBEAT", 5*time.Second),
		CallTimeout: util.EnvDuration("NODE_CALL_TIMEOUT", 3*time.Second),
	})
	if err := n.Start(); err != nil {
		log.Fatalf("start node: %v", err)
	}

	util.WaitForShutdown(func(ctx context.Context) {
		log.Printf("[node %s] shutting down...", n.ID())
		n.Stop()
	})
}
