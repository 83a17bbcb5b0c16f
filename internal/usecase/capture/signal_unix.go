package capture

import "syscall"

// ffmpeg flushes and finalizes its output on SIGTERM, which matters for
// container formats with trailing metadata.
var terminateSignal = syscall.SIGTERM
