//go:build !windows

package main

import "tryon_backend/logging"

// RunAsService always reports false outside Windows; systemd and launchd
// run the binary in the foreground.
func RunAsService(logger *logging.Logger) (bool, error) {
	return false, nil
}

// HandleServiceCommand handles no commands outside Windows.
func HandleServiceCommand(args []string) bool {
	return false
}
