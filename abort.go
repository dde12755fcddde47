package arcgo

import (
	"fmt"
	"os"
)

// exit terminates the process; tests swap it out.
var exit = os.Exit

// abort reports a fatal reference-count condition and terminates the
// process. Continuing past an overflowed count could free a block that is
// still referenced, so this is never surfaced as an error or a recoverable
// panic.
func abort(l *Logger, msg string, args ...any) {
	if l != nil {
		l.Error(msg, args...)
	}
	fmt.Fprintln(os.Stderr, "fatal error: arcgo:", msg)
	exit(2)
	panic("arcgo: " + msg)
}
