//go:build linux || darwin

// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package net provides TCP and UDP sockets built entirely on the loomrt
// event-source protocol: every blocking call (Dial, Accept, Read, Write,
// ReadFrom, WriteTo) parks the calling coroutine instead of an OS thread,
// registering through loomrt.RegisterIO/IoData.WaitIO rather than the
// standard library's net package.
//
// Grounded in the non-blocking "try, park-then-recheck, retry on
// WouldBlock" connect/read/write protocol described by spec.md's reactor
// design notes.
package net

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/loomrt/loomrt"
)

// Stream is a non-blocking TCP connection. A held deadline (set via
// SetReadTimeout/SetWriteTimeout) lives behind an atomic cell so a
// concurrent call from another coroutine to adjust the deadline never
// races a call already blocked in Read/Write — spec.md §9's "unstable
// aliasing" design note, applied here.
type Stream struct {
	fd   int
	data *loomrt.IoData

	readTimeout  atomic.Int64 // time.Duration, 0 = no timeout
	writeTimeout atomic.Int64

	localAddr  net.Addr
	remoteAddr net.Addr
}

// Listener accepts incoming TCP connections without blocking an OS thread.
type Listener struct {
	fd   int
	data *loomrt.IoData
	addr net.Addr
}

func sockaddrFromTCP(addr *net.TCPAddr) (unix.Sockaddr, int, error) {
	if addr == nil || addr.IP == nil || addr.IP.To4() != nil {
		var sa unix.SockaddrInet4
		if addr != nil {
			copy(sa.Addr[:], addr.IP.To4())
			sa.Port = addr.Port
		}
		return &sa, unix.AF_INET, nil
	}
	var sa unix.SockaddrInet6
	copy(sa.Addr[:], addr.IP.To16())
	sa.Port = addr.Port
	return &sa, unix.AF_INET6, nil
}

func newNonblockingSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	return fd, nil
}

// Dial connects to addr, parking the calling coroutine until the
// non-blocking connect completes (or fails), rather than blocking the OS
// thread for the duration of the three-way handshake.
func Dial(addr string) (*Stream, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	sa, family, err := sockaddrFromTCP(tcpAddr)
	if err != nil {
		return nil, err
	}

	fd, err := newNonblockingSocket(family)
	if err != nil {
		return nil, err
	}

	data := loomrt.NewIoData(fd)
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, err
	}

	if err := loomrt.RegisterIO(fd, loomrt.InterestWrite, data); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	co := loomrt.Current()
	if err == unix.EINPROGRESS {
		if werr := data.WaitIO(co, loomrt.InterestWrite, 0); werr != nil {
			_ = loomrt.UnregisterIO(fd)
			_ = unix.Close(fd)
			return nil, werr
		}
	}

	if soErr, serr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); serr == nil && soErr != 0 {
		_ = loomrt.UnregisterIO(fd)
		_ = unix.Close(fd)
		return nil, unix.Errno(soErr)
	}

	s := &Stream{fd: fd, data: data, remoteAddr: tcpAddr}
	if local, lerr := unix.Getsockname(fd); lerr == nil {
		s.localAddr = sockaddrToTCPAddr(local)
	}
	return s, nil
}

// Listen binds and listens on addr, returning a Listener that accepts
// connections through Accept.
func Listen(addr string) (*Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	sa, family, err := sockaddrFromTCP(tcpAddr)
	if err != nil {
		return nil, err
	}

	fd, err := newNonblockingSocket(family)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, 1024); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	data := loomrt.NewIoData(fd)
	if err := loomrt.RegisterIO(fd, loomrt.InterestRead, data); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	l := &Listener{fd: fd, data: data}
	if local, lerr := unix.Getsockname(fd); lerr == nil {
		l.addr = sockaddrToTCPAddr(local)
	}
	return l, nil
}

// Accept blocks the calling coroutine until a connection arrives, retrying
// the non-blocking accept4 on EAGAIN after each reactor wakeup.
func (l *Listener) Accept() (*Stream, error) {
	co := loomrt.Current()
	for {
		connFd, sa, err := unix.Accept4(l.fd, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
		if err == nil {
			data := loomrt.NewIoData(connFd)
			if rerr := loomrt.RegisterIO(connFd, 0, data); rerr != nil {
				_ = unix.Close(connFd)
				return nil, rerr
			}
			s := &Stream{fd: connFd, data: data, remoteAddr: sockaddrToTCPAddr(sa), localAddr: l.addr}
			return s, nil
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return nil, err
		}
		if werr := l.data.WaitIO(co, loomrt.InterestRead, 0); werr != nil {
			return nil, werr
		}
	}
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.addr }

// Close stops accepting new connections.
func (l *Listener) Close() error {
	_ = loomrt.UnregisterIO(l.fd)
	return unix.Close(l.fd)
}

// SetReadTimeout bounds how long a future Read call will wait for data
// before returning loomrt.ErrTimedOut. Zero disables the timeout.
func (s *Stream) SetReadTimeout(d time.Duration) { s.readTimeout.Store(int64(d)) }

// SetWriteTimeout bounds how long a future Write call will wait for
// write-readiness before returning loomrt.ErrTimedOut. Zero disables the
// timeout.
func (s *Stream) SetWriteTimeout(d time.Duration) { s.writeTimeout.Store(int64(d)) }

// LocalAddr returns the connection's local address.
func (s *Stream) LocalAddr() net.Addr { return s.localAddr }

// RemoteAddr returns the connection's peer address.
func (s *Stream) RemoteAddr() net.Addr { return s.remoteAddr }

// Read fills buf with whatever is available, parking the calling coroutine
// until data arrives if none currently is.
func (s *Stream) Read(buf []byte) (int, error) {
	co := loomrt.Current()
	timeout := time.Duration(s.readTimeout.Load())
	for {
		n, err := unix.Read(s.fd, buf)
		if err == nil {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return 0, err
		}
		if werr := s.data.WaitIO(co, loomrt.InterestRead, timeout); werr != nil {
			return 0, werr
		}
	}
}

// Write writes the entirety of buf, parking the calling coroutine whenever
// the socket's send buffer is full.
func (s *Stream) Write(buf []byte) (int, error) {
	co := loomrt.Current()
	timeout := time.Duration(s.writeTimeout.Load())
	total := 0
	for total < len(buf) {
		n, err := unix.Write(s.fd, buf[total:])
		if err == nil {
			total += n
			continue
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return total, err
		}
		if werr := s.data.WaitIO(co, loomrt.InterestWrite, timeout); werr != nil {
			return total, werr
		}
	}
	return total, nil
}

// Close releases the connection's fd.
func (s *Stream) Close() error {
	_ = loomrt.UnregisterIO(s.fd)
	return unix.Close(s.fd)
}

func sockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	default:
		return nil
	}
}
