// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command echo runs a TCP echo server entirely on loomrt coroutines: the
// Accept loop and every connection's read/write loop are separate
// coroutines multiplexed across a fixed worker pool, none of them ever
// blocking an OS thread.
package main

import (
	"errors"
	"flag"
	"log"
	stdnet "net"

	"github.com/loomrt/loomrt"
	"github.com/loomrt/loomrt/net"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:0", "address to listen on")
	workers := flag.Int("workers", 0, "worker count (0 = GOMAXPROCS)")
	flag.Parse()

	if *workers > 0 {
		if err := loomrt.SetWorkers(*workers); err != nil {
			log.Fatalf("echo: %v", err)
		}
	}

	ln, err := net.Listen(*addr)
	if err != nil {
		log.Fatalf("echo: listen %s: %v", *addr, err)
	}
	defer ln.Close()
	log.Printf("echo: listening on %s", ln.Addr())

	accept := loomrt.Spawn(func(co *loomrt.Coroutine) error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			loomrt.Spawn(func(co *loomrt.Coroutine) error {
				return serve(conn)
			})
		}
	})

	if result, joinErr := accept.Join(); joinErr != nil || result != nil {
		log.Printf("echo: accept loop ended: join=%v result=%v", joinErr, result)
	}
}

// serve copies everything read from conn back to conn until the peer
// closes the connection or an I/O error occurs.
func serve(conn *net.Stream) error {
	defer conn.Close()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, stdnet.ErrClosed) {
				return nil
			}
			return err
		}
		if _, werr := conn.Write(buf[:n]); werr != nil {
			return werr
		}
	}
}
