//go:build unix || darwin || linux || freebsd || openbsd || netbsd

package txn

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile acquires a non-blocking, process-wide exclusive lock on f (the
// engine passes the data file's companion "<path>.lock" file) at open time:
// a crash/multi-process backstop over the in-process
// writer mutex that actually serializes write transactions within one
// process. Grounded on mjm918-tur's pkg/turdb/lock_unix.go.
func lockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
