// File: selector/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-independent wrappers over the per-OS socket primitives, kept in
// a separate, untagged file so callers outside this package (managers)
// never need a build tag of their own to reach them.

package selector

// FinishConnect exposes the completion check a Manager performs from
// selector.Manager.FinishConnect: true once a non-blocking connect has
// succeeded, false (with the underlying cause) if it was refused.
func FinishConnect(fd uintptr) (bool, error) {
	return finishConnect(fd)
}
