//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation and factory. Interest is
// level-triggered (no EPOLLET) so a readiness condition that isn't fully
// drained in one pass is reported again on the next Wait, matching the
// repeated-notification behavior java.nio.channels.Selector callers rely on.

package reactor

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// linuxReactor is an epoll-based event reactor with an eventfd wakeup.
type linuxReactor struct {
	epfd     int
	wakeFd   int
	mu       sync.Mutex
	interest map[int32]InterestOps
}

// NewReactor constructs a new platform-specific EventReactor for Linux.
func NewReactor() (EventReactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	r := &linuxReactor{epfd: epfd, wakeFd: wakeFd, interest: make(map[int32]InterestOps)}
	wakeEv := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, wakeEv); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, err
	}
	return r, nil
}

func epollMask(ops InterestOps) uint32 {
	var m uint32
	if ops&(OpRead|OpAccept) != 0 {
		m |= unix.EPOLLIN
	}
	if ops&(OpWrite|OpConnect) != 0 {
		m |= unix.EPOLLOUT
	}
	return m
}

func readyMask(events uint32) InterestOps {
	var ops InterestOps
	if events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		ops |= OpRead | OpAccept
	}
	if events&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
		ops |= OpWrite | OpConnect
	}
	return ops
}

// Register adds file descriptor to epoll.
func (r *linuxReactor) Register(fd uintptr, ops InterestOps, udata uintptr) error {
	event := &unix.EpollEvent{Events: epollMask(ops), Fd: int32(fd)}
	*(*uintptr)(unsafe.Pointer(&event.Pad)) = udata
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), event); err != nil {
		return err
	}
	r.mu.Lock()
	r.interest[int32(fd)] = ops
	r.mu.Unlock()
	return nil
}

// Modify changes the interest ops for a registered fd, preserving its
// userData (epoll_ctl MOD requires resubmitting the full event).
func (r *linuxReactor) Modify(fd uintptr, ops InterestOps) error {
	r.mu.Lock()
	r.interest[int32(fd)] = ops
	r.mu.Unlock()
	event := &unix.EpollEvent{Events: epollMask(ops), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), event)
}

// Unregister removes fd from epoll's watch set.
func (r *linuxReactor) Unregister(fd uintptr) error {
	r.mu.Lock()
	delete(r.interest, int32(fd))
	r.mu.Unlock()
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

// Wait waits for epoll events and fills the result into events slice. The
// internal wakeup fd is drained and never surfaced to callers.
func (r *linuxReactor) Wait(events []Event, timeoutMs int) (int, error) {
	rawEvents := make([]unix.EpollEvent, len(events)+1)
	n, err := unix.EpollWait(r.epfd, rawEvents, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	out := 0
	for i := 0; i < n && out < len(events); i++ {
		if int(rawEvents[i].Fd) == r.wakeFd {
			var buf [8]byte
			unix.Read(r.wakeFd, buf[:])
			continue
		}
		events[out] = Event{
			Fd:       uintptr(rawEvents[i].Fd),
			Ready:    readyMask(rawEvents[i].Events),
			UserData: *(*uintptr)(unsafe.Pointer(&rawEvents[i].Pad)),
		}
		out++
	}
	return out, nil
}

// Wakeup writes to the eventfd, causing one blocked Wait to return.
func (r *linuxReactor) Wakeup() error {
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))
	_, err := unix.Write(r.wakeFd, buf[:])
	if err == unix.EAGAIN {
		// Counter already non-zero: a wakeup is already pending.
		return nil
	}
	return err
}

// Close closes the epoll and eventfd instances.
func (r *linuxReactor) Close() error {
	unix.Close(r.wakeFd)
	return unix.Close(r.epfd)
}
