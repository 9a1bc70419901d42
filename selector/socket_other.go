//go:build !linux
// +build !linux

// File: selector/socket_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-Linux builds get the IOCP reactor (best-effort, see
// reactor_windows.go) but no raw accept4/connect/SO_ERROR primitives:
// golang.org/x/sys/windows does not expose POSIX-shaped non-blocking
// socket calls the way x/sys/unix does, and faking them on top of net.FD
// would require unsafe access to unexported fields. Accept/connect support
// on these platforms is a documented gap, not a silent one: every call
// here fails with api.ErrCodeNotSupported.

package selector

import "github.com/momentics/nioselect/api"

func acceptOne(listenFd uintptr) (fd uintptr, ok bool, err error) {
	return 0, false, api.NewError(api.ErrCodeNotSupported, "selector: accept not implemented on this platform")
}

func dialNonblocking(addr any) (fd uintptr, connecting bool, err error) {
	return 0, false, api.NewError(api.ErrCodeNotSupported, "selector: connect not implemented on this platform")
}

func finishConnect(fd uintptr) (ok bool, err error) {
	return false, api.NewError(api.ErrCodeNotSupported, "selector: connect not implemented on this platform")
}

func closeFD(fd uintptr) error {
	return api.NewError(api.ErrCodeNotSupported, "selector: closeFD not implemented on this platform")
}

// DialTCP has no implementation on this platform; see the package doc
// comment above for why.
func DialTCP(addr string) (fd uintptr, connecting bool, err error) {
	return 0, false, api.NewError(api.ErrCodeNotSupported, "selector: DialTCP not implemented on this platform")
}

// ListenTCP has no implementation on this platform; see the package doc
// comment above for why.
func ListenTCP(addr string, backlog int) (fd uintptr, err error) {
	return 0, api.NewError(api.ErrCodeNotSupported, "selector: ListenTCP not implemented on this platform")
}
