package main

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Moves the calling thread to SCHED_FIFO so frames keep coming under load.
// Locks the goroutine to its thread, call it from the goroutine running the event loop
func setRealtimePriority(priority int) error {
	if priority <= 0 {
		return nil
	}
	runtime.LockOSThread()
	attr := unix.SchedAttr{
		Size:     uint32(unsafe.Sizeof(unix.SchedAttr{})),
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	// pid 0 is the calling thread
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return fmt.Errorf("failed to set SCHED_FIFO priority %d: %w", priority, err)
	}
	return nil
}
