package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/rpc"
	"os"

	"github.com/go-chi/chi/v5"

	"example.com/replicated-kv/internal/rendezvous"
	"example.com/replicated-kv/internal/util"
)

func main() {
	listen := flag.String("listen", util.Env("RENDEZVOUS_ADDR", ":8080"), "rendezvous listen address")
	flag.Parse()

	// Positional form: <binary> [port]
	switch flag.NArg() {
	case 0:
	case 1:
		*listen = ":" + flag.Arg(0)
	default:
		fmt.Fprintf(os.Stderr, "Usage: %s [port]\n", os.Args[0])
		os.Exit(1)
	}

	rz := rendezvous.New()

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Rendezvous", rz); err != nil {
		log.Fatalf("register rpc: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle(rpc.DefaultRPCPath, rpcServer)

	log.Printf("[rendezvous] listening on %s (RPC path %s)", *listen, rpc.DefaultRPCPath)
	log.Fatal(http.ListenAndServe(*listen, r))
}
