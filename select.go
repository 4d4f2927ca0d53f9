// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loomrt

import "sync/atomic"

// SelectCase is one branch of a Select call. Unlike EventSource[T], whose
// Subscribe/Done pair assumes exactly one source will ever resolve a given
// park cycle, a Select has N branches racing to resolve the SAME park
// cycle — so each branch needs its own resolve callback rather than
// sharing the coroutine-level Wake used everywhere else.
//
// Ready performs the branch's non-blocking fast-path check (mirrors an
// EventSource's Subscribe returning true): if it can complete immediately,
// it does so and reports true. Arm performs the blocking half: it
// registers with whatever it waits on (a mutex's waiter list, a channel's
// recvQ, a reactor registration, a timer) and must invoke resolve exactly
// once, with the branch's result, the first time it becomes ready — even
// if that happens after this Select has already been won by another
// branch, since Select only acts on the first resolve call it sees. Unarm
// is called on every losing branch once the winner is known, so it can
// remove itself from its wait queue instead of leaking a phantom waiter.
type SelectCase struct {
	Ready func() (ready bool, err error)
	Arm   func(co *Coroutine, resolve func(err error))
	Unarm func()
}

// selectCancelledWinner is the synthetic winner index stored when a
// Select's CancelToken fires before any real branch does; Done() never
// surfaces it, translating it back to -1.
const selectCancelledWinner = -2

type selectOp struct {
	cases  []SelectCase
	winner atomic.Int32
	err    atomic.Pointer[error]
}

func (s *selectOp) Subscribe(co *Coroutine) bool {
	s.winner.Store(-1)
	for i, c := range s.cases {
		if c.Ready == nil {
			continue
		}
		if ready, err := c.Ready(); ready {
			s.winner.Store(int32(i))
			s.err.Store(&err)
			return true
		}
	}
	for i := range s.cases {
		idx := i
		s.cases[idx].Arm(co, func(err error) {
			if s.winner.CompareAndSwap(-1, int32(idx)) {
				s.err.Store(&err)
				Wake(co)
			}
		})
	}
	// A Select whose every branch is otherwise uncancellable (e.g. a bare
	// SleepCase) would hang forever past its CancelToken firing; racing a
	// synthetic winner against the real Arm callbacks gives every Select
	// the same interruptibility every other blocking call has.
	co.CancelToken().OnCancel(func(reason any) {
		if s.winner.CompareAndSwap(-1, selectCancelledWinner) {
			err := ErrCancelled
			s.err.Store(&err)
			Wake(co)
		}
	})
	return false
}

func (s *selectOp) Done() (int, error) {
	winner := int(s.winner.Load())
	for i, c := range s.cases {
		if i != winner && c.Unarm != nil {
			c.Unarm()
		}
	}
	var err error
	if p := s.err.Load(); p != nil {
		err = *p
	}
	if winner == selectCancelledWinner {
		winner = -1
	}
	return winner, err
}

// Select blocks co until exactly one of cases becomes ready, returning its
// index and whatever error it resolved with. SelectCase values come from
// SleepCase, JoinHandle.SelectCase, IoData.SelectCase, and the channel
// package's SendCase/RecvCase; the net and syncx packages have none.
func Select(co *Coroutine, cases ...SelectCase) (int, error) {
	return AwaitEventSource[int](co, &selectOp{cases: cases})
}
