//go:build linux || darwin

// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package net

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/loomrt/loomrt"
)

// PacketConn is a non-blocking UDP socket.
type PacketConn struct {
	fd   int
	data *loomrt.IoData
	addr net.Addr
}

// ListenPacket binds a UDP socket on addr.
func ListenPacket(addr string) (*PacketConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	sa, family, err := sockaddrFromUDP(udpAddr)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.IPPROTO_UDP)
	if err != nil {
		return nil, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	data := loomrt.NewIoData(fd)
	if err := loomrt.RegisterIO(fd, loomrt.InterestRead, data); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	p := &PacketConn{fd: fd, data: data}
	if local, lerr := unix.Getsockname(fd); lerr == nil {
		p.addr = sockaddrToUDPAddr(local)
	}
	return p, nil
}

// LocalAddr returns the socket's bound address.
func (p *PacketConn) LocalAddr() net.Addr { return p.addr }

// ReadFrom reads one datagram into buf, parking the calling coroutine until
// one arrives.
func (p *PacketConn) ReadFrom(buf []byte) (int, net.Addr, error) {
	co := loomrt.Current()
	for {
		n, sa, err := unix.Recvfrom(p.fd, buf, 0)
		if err == nil {
			return n, sockaddrToUDPAddr(sa), nil
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return 0, nil, err
		}
		if werr := p.data.WaitIO(co, loomrt.InterestRead, 0); werr != nil {
			return 0, nil, werr
		}
	}
}

// WriteTo sends buf as a single datagram to addr, parking the calling
// coroutine if the socket's send buffer is momentarily full.
func (p *PacketConn) WriteTo(buf []byte, addr net.Addr) (int, error) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", addr.String())
		if err != nil {
			return 0, err
		}
		udpAddr = resolved
	}
	sa, _, err := sockaddrFromUDP(udpAddr)
	if err != nil {
		return 0, err
	}

	co := loomrt.Current()
	for {
		err := unix.Sendto(p.fd, buf, 0, sa)
		if err == nil {
			return len(buf), nil
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return 0, err
		}
		if werr := p.data.WaitIO(co, loomrt.InterestWrite, time.Duration(0)); werr != nil {
			return 0, werr
		}
	}
}

// Close releases the socket's fd.
func (p *PacketConn) Close() error {
	_ = loomrt.UnregisterIO(p.fd)
	return unix.Close(p.fd)
}

func sockaddrFromUDP(addr *net.UDPAddr) (unix.Sockaddr, int, error) {
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

func sockaddrToUDPAddr(sa unix.Sockaddr) *net.UDPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: append([]byte(nil), a.Addr[:]...), Port: a.Port}
	default:
		return nil
	}
}
