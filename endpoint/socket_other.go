//go:build !linux
// +build !linux

// File: endpoint/socket_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// See selector/socket_other.go: raw fd read/write/close has the same
// platform gap on non-Linux builds.

package endpoint

import (
	"errors"

	"github.com/momentics/nioselect/api"
)

var errWouldBlock = errors.New("endpoint: would block")

func readFD(fd uintptr, p []byte) (int, error) {
	return 0, api.NewError(api.ErrCodeNotSupported, "endpoint: read not implemented on this platform")
}

func writeFD(fd uintptr, p []byte) (int, error) {
	return 0, api.NewError(api.ErrCodeNotSupported, "endpoint: write not implemented on this platform")
}

func closeFD(fd uintptr) error {
	return api.NewError(api.ErrCodeNotSupported, "endpoint: close not implemented on this platform")
}
