//go:build !linux && !android

package ipc

import "net"

// authenticatePeer has no SO_PEERCRED equivalent wired up on this
// platform. It always reports supported=false so the caller logs a
// warning and falls back to the Unix socket's filesystem permissions
// alone.
func authenticatePeer(conn *net.UnixConn) (allowed bool, supported bool, err error) {
	return false, false, nil
}
