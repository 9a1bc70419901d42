//go:build linux
// +build linux

// File: selector/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw non-blocking socket primitives for the accept/connect paths. Grounded
// in the same golang.org/x/sys/unix calls the teacher's non-blocking TCP
// transport used (Socket/SetNonblock/SetsockoptInt/Connect/Accept4), just
// generalized from one hard-coded transport into generic fd registration.

package selector

import "golang.org/x/sys/unix"

// acceptOne calls accept4() once on a non-blocking listening fd. ok is false
// with a nil error when there is no pending connection (EAGAIN/EWOULDBLOCK);
// callers loop on acceptOne until ok is false to drain every pending
// connection in one readiness notification, per the accept-readiness rule.
func acceptOne(listenFd uintptr) (fd uintptr, ok bool, err error) {
	nfd, _, aerr := unix.Accept4(int(listenFd), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if aerr != nil {
		if aerr == unix.EAGAIN || aerr == unix.EWOULDBLOCK {
			return 0, false, nil
		}
		return 0, false, aerr
	}
	return uintptr(nfd), true, nil
}

// dialNonblocking creates a non-blocking TCP socket and issues connect().
// connecting is true when the connect is in progress (EINPROGRESS) and the
// caller should register for OpConnect readiness; false means the connect
// finished synchronously (rare, but legal for loopback).
func dialNonblocking(sa unix.Sockaddr) (fd uintptr, connecting bool, err error) {
	domain := unix.AF_INET
	if _, ok := sa.(*unix.SockaddrInet6); ok {
		domain = unix.AF_INET6
	}
	sock, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, unix.IPPROTO_TCP)
	if err != nil {
		return 0, false, err
	}
	_ = unix.SetsockoptInt(sock, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	cerr := unix.Connect(sock, sa)
	if cerr == nil {
		return uintptr(sock), false, nil
	}
	if cerr == unix.EINPROGRESS {
		return uintptr(sock), true, nil
	}
	unix.Close(sock)
	return 0, false, cerr
}

// finishConnect checks SO_ERROR on a socket whose connect() reported
// EINPROGRESS. ok is true once the TCP handshake has completed successfully.
func finishConnect(fd uintptr) (ok bool, err error) {
	errno, gerr := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil {
		return false, gerr
	}
	if errno != 0 {
		return false, unix.Errno(errno)
	}
	return true, nil
}

func closeFD(fd uintptr) error {
	return unix.Close(int(fd))
}
