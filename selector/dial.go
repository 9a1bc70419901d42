//go:build linux
// +build linux

// File: selector/dial.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Public convenience wrappers around the raw socket primitives, for
// managers that want to originate an outbound connect without reaching
// into unexported helpers themselves.

package selector

import (
	"net"

	"golang.org/x/sys/unix"
)

// DialTCP creates a non-blocking TCP socket and issues connect() toward
// addr ("host:port"). The returned fd is always non-blocking; connecting
// reports whether the handshake is still in flight (the common case) or
// already finished synchronously. Callers hand fd to a Loop's Connect
// method to register it for readiness and timeout tracking.
func DialTCP(addr string) (fd uintptr, connecting bool, err error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return 0, false, err
	}
	sa, err := sockaddrFromTCPAddr(tcpAddr)
	if err != nil {
		return 0, false, err
	}
	return dialNonblocking(sa)
}

// ListenTCP creates a non-blocking, listening TCP socket bound to addr
// ("host:port", host may be empty for all interfaces) with a backlog of
// backlog connections. The returned fd is registered for accept readiness
// via a Loop's Start method.
func ListenTCP(addr string, backlog int) (fd uintptr, err error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return 0, err
	}
	sa, err := sockaddrFromTCPAddr(tcpAddr)
	if err != nil {
		return 0, err
	}
	domain := unix.AF_INET
	if _, ok := sa.(*unix.SockaddrInet6); ok {
		domain = unix.AF_INET6
	}
	sock, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return 0, err
	}
	if err := unix.SetsockoptInt(sock, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(sock)
		return 0, err
	}
	if err := unix.Bind(sock, sa); err != nil {
		unix.Close(sock)
		return 0, err
	}
	if err := unix.Listen(sock, backlog); err != nil {
		unix.Close(sock)
		return 0, err
	}
	return uintptr(sock), nil
}

func sockaddrFromTCPAddr(a *net.TCPAddr) (unix.Sockaddr, error) {
	if ip4 := a.IP.To4(); ip4 != nil {
		var addr [4]byte
		copy(addr[:], ip4)
		return &unix.SockaddrInet4{Port: a.Port, Addr: addr}, nil
	}
	ip16 := a.IP.To16()
	if ip16 == nil {
		return nil, &net.AddrError{Err: "unsupported address family", Addr: a.String()}
	}
	var addr [16]byte
	copy(addr[:], ip16)
	return &unix.SockaddrInet6{Port: a.Port, Addr: addr}, nil
}
