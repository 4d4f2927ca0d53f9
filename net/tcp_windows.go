//go:build windows

// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package net

import (
	"errors"
	"net"
	"time"
)

// ErrNotImplemented is returned by every Windows Stream/Listener operation.
//
// The Unix build (tcp.go) drives sockets through plain non-blocking
// read/write plus epoll/kqueue readiness. Doing the same on Windows needs
// AcceptEx/ConnectEx and overlapped WSARecv/WSASend, whose function
// pointers must be resolved per-socket via a WSAIoctl
// SIO_GET_EXTENSION_FUNCTION_POINTER call before they can be used — a
// second, socket-API-specific layer on top of the IOCP reactor
// (poller_windows.go) that this package doesn't build out yet. The
// reactor itself is fully cross-platform; only this socket layer is not.
var ErrNotImplemented = errors.New("loomrt/net: windows sockets not implemented")

type Stream struct{}
type Listener struct{}

func Dial(addr string) (*Stream, error)    { return nil, ErrNotImplemented }
func Listen(addr string) (*Listener, error) { return nil, ErrNotImplemented }

func (l *Listener) Accept() (*Stream, error)      { return nil, ErrNotImplemented }
func (l *Listener) Addr() net.Addr                { return nil }
func (l *Listener) Close() error                  { return ErrNotImplemented }
func (s *Stream) SetReadTimeout(d time.Duration)  {}
func (s *Stream) SetWriteTimeout(d time.Duration) {}
func (s *Stream) LocalAddr() net.Addr             { return nil }
func (s *Stream) RemoteAddr() net.Addr            { return nil }
func (s *Stream) Read(buf []byte) (int, error)    { return 0, ErrNotImplemented }
func (s *Stream) Write(buf []byte) (int, error)   { return 0, ErrNotImplemented }
func (s *Stream) Close() error                    { return ErrNotImplemented }
