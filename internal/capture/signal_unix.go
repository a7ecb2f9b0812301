//go:build !windows

package capture

import (
	"os"
	"syscall"
)

func terminateSignal() os.Signal { return syscall.SIGTERM }
