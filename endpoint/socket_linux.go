//go:build linux
// +build linux

// File: endpoint/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint

import (
	"io"

	"golang.org/x/sys/unix"
)

var errWouldBlock = unix.EAGAIN

func readFD(fd uintptr, p []byte) (int, error) {
	n, err := unix.Read(int(fd), p)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func writeFD(fd uintptr, p []byte) (int, error) {
	n, err := unix.Write(int(fd), p)
	if err != nil {
		return n, err
	}
	return n, nil
}

func closeFD(fd uintptr) error {
	return unix.Close(int(fd))
}
