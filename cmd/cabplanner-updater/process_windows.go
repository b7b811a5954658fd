//go:build windows

package main

import (
	"golang.org/x/sys/windows"
)

// processAlive reports whether a process with the given pid exists and has
// not yet exited.
func processAlive(pid int) bool {
	handle, err := windows.OpenProcess(
		windows.PROCESS_QUERY_LIMITED_INFORMATION|windows.SYNCHRONIZE, false, uint32(pid))
	if err != nil {
		return false
	}
	defer func() { _ = windows.CloseHandle(handle) }()

	// A zero wait tells us whether the process object is signaled (exited).
	event, err := windows.WaitForSingleObject(handle, 0)
	if err != nil {
		return false
	}
	return event == uint32(windows.WAIT_TIMEOUT)
}
