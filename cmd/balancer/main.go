package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/rpc"
	"os"

	"github.com/go-chi/chi/v5"

	"example.com/replicated-kv/common"
	"example.com/replicated-kv/internal/balancer"
	"example.com/replicated-kv/internal/util"
)

// readConfig parses the workload description from stdin:
//
//	put_pct rem_pct data_size N
//	<ip> <port>   (N times)
func readConfig(in *bufio.Reader) (balancer.Workload, []common.Addr, error) {
	var w balancer.Workload
	if _, err := fmt.Fscan(in, &w.PutPercent); err != nil {
		return w, nil, fmt.Errorf("read put percentage: %w", err)
	}
	if _, err := fmt.Fscan(in, &w.RemPercent); err != nil {
		return w, nil, fmt.Errorf("read remove percentage: %w", err)
	}
	if err := w.Validate(); err != nil {
		return w, nil, err
	}
	if _, err := fmt.Fscan(in, &w.DataSize); err != nil {
		return w, nil, fmt.Errorf("read data size: %w", err)
	}
	var n int
	if _, err := fmt.Fscan(in, &n); err != nil {
		return w, nil, fmt.Errorf("read server count: %w", err)
	}
	if n <= 0 {
		return w, nil, fmt.Errorf("you must specify a positive number of servers")
	}
	backends := make([]common.Addr, 0, n)
	for i := 0; i < n; i++ {
		var a common.Addr
		if _, err := fmt.Fscan(in, &a.Host, &a.Port); err != nil {
			return w, nil, fmt.Errorf("read server %d: %w", i+1, err)
		}
		backends = append(backends, a)
	}
	return w, backends, nil
}

func main() {
	listen := flag.String("listen", util.Env("BALANCER_ADDR", ""), "balancer listen address")
	flag.Parse()

	switch flag.NArg() {
	case 0:
		if *listen == "" {
			fmt.Fprintf(os.Stderr, "Usage: %s <port>\n", os.Args[0])
			os.Exit(1)
		}
	case 1:
		*listen = ":" + flag.Arg(0)
	default:
		fmt.Fprintf(os.Stderr, "Usage: %s <port>\n", os.Args[0])
		os.Exit(1)
	}

	w, backends, err := readConfig(bufio.NewReader(os.Stdin))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	b, err := balancer.New(backends, w)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Balancer", b); err != nil {
		log.Fatalf("register rpc: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle(rpc.DefaultRPCPath, rpcServer)

	fmt.Println("STARTED LOAD BALANCER")
	log.Printf("[balancer] %d backends, put=%.2f rem=%.2f size=%d, listening on %s",
		len(backends), w.PutPercent, w.RemPercent, w.DataSize, *listen)
	log.Fatal(http.ListenAndServe(*listen, r))
}
