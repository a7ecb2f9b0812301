//go:build windows

package capture

import "os"

func terminateSignal() os.Signal { return os.Kill }
