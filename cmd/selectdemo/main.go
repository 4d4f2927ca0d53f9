// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command selectdemo races three Select branches against each other — a
// channel receive, a spawned coroutine's completion, and a sleep — to
// demonstrate that whichever becomes ready first wins, and that the losing
// branches are cleanly unarmed rather than leaking waiters.
package main

import (
	"log"
	"strconv"
	"time"

	"github.com/loomrt/loomrt"
	"github.com/loomrt/loomrt/channel"
)

func main() {
	driver := loomrt.Spawn(func(co *loomrt.Coroutine) string {
		ch := channel.NewMPSC[string](1)

		// Slow producer: sends well after the timeout below would fire,
		// so this run's winner is the timeout branch.
		loomrt.Spawn(func(co *loomrt.Coroutine) struct{} {
			if err := loomrt.Sleep(200 * time.Millisecond); err != nil {
				return struct{}{}
			}
			_ = ch.Send(co, "late")
			return struct{}{}
		})

		worker := loomrt.Spawn(func(co *loomrt.Coroutine) int {
			if err := loomrt.Sleep(150 * time.Millisecond); err != nil {
				return -1
			}
			return 42
		})

		recvCase, recvResult := ch.RecvCase()
		joinCase := worker.SelectCase()
		timeoutCase := loomrt.SleepCase(50 * time.Millisecond)

		winner, err := loomrt.Select(co, recvCase, joinCase, timeoutCase)
		if err != nil {
			return "select error: " + err.Error()
		}

		switch winner {
		case 0:
			return "channel won: " + recvResult.Value()
		case 1:
			result, _ := worker.Join()
			return "join won: " + strconv.Itoa(result)
		case 2:
			return "timeout won"
		default:
			return "unreachable"
		}
	})

	result, err := driver.Join()
	if err != nil {
		log.Fatalf("selectdemo: %v", err)
	}
	log.Printf("selectdemo: %s", result)
}
