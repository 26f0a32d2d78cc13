package lockfile

import "errors"

// ErrTimeout is returned when a lock could not be acquired before the
// configured timeout elapsed. Callers (notably the digest pipeline) use
// errors.Is against this to decide whether to schedule a retry.
var ErrTimeout = errors.New("timed out waiting for workspace lock")
