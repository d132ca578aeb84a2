// File: internal/concurrency/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU affinity for goroutines locked to their OS thread, such as a
// selector's dispatch loop.

package concurrency

import "fmt"

// PinCurrentThread binds the calling OS thread to cpu and returns a function
// restoring the previous affinity. The caller must hold runtime.LockOSThread;
// otherwise the binding leaks to whichever goroutine runs on the thread next.
func PinCurrentThread(cpu int) (restore func() error, err error) {
	if cpu < 0 {
		return nil, fmt.Errorf("concurrency: pin: invalid cpu %d", cpu)
	}
	return platformPinCurrentThread(cpu)
}
