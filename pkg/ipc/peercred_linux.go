//go:build linux || android

package ipc

import (
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// authenticatePeer obtains the connecting peer's UID via SO_PEERCRED
// and reports whether it matches the daemon's own UID. supported is false
// when peer credential lookup is unsupported on this platform/socket type —
// the daemon then logs a warning and relies on filesystem permissions
// alone.
func authenticatePeer(conn *net.UnixConn) (allowed bool, supported bool, err error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return false, false, err
	}

	var ucred *unix.Ucred
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil {
		return false, false, ctrlErr
	}
	if sockErr != nil {
		// SO_PEERCRED unsupported on this platform/socket.
		return false, false, nil
	}

	return int(ucred.Uid) == os.Getuid(), true, nil
}
