//go:build windows

// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package net

import "net"

// PacketConn mirrors Stream's Windows placeholder: see tcp_windows.go's
// ErrNotImplemented doc comment for why.
type PacketConn struct{}

func ListenPacket(addr string) (*PacketConn, error) { return nil, ErrNotImplemented }

func (p *PacketConn) LocalAddr() net.Addr { return nil }
func (p *PacketConn) ReadFrom(buf []byte) (int, net.Addr, error) {
	return 0, nil, ErrNotImplemented
}
func (p *PacketConn) WriteTo(buf []byte, addr net.Addr) (int, error) { return 0, ErrNotImplemented }
func (p *PacketConn) Close() error                                   { return ErrNotImplemented }
