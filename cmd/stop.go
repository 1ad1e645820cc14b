// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"grimm.is/synguard/internal/brand"
	"grimm.is/synguard/internal/daemon"
	"grimm.is/synguard/internal/install"
)

// stopTimeout bounds the wait for the daemon to finish its cycle and
// flush state.
var stopTimeout = 30 * time.Second

// RunStop asks the daemon to terminate and waits for its PID file to go.
func RunStop(pidPath string) error {
	if pidPath == "" {
		pidPath = install.PIDFile()
	}
	pid, err := ReadPID(pidPath)
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}

	Printer.Printf("Stopping %s (PID: %d)...\n", brand.Name, pid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(pidPath); os.IsNotExist(err) {
			Printer.Println("Stopped.")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("%s (PID: %d) did not stop within %s", brand.Name, pid, stopTimeout)
}

// RunSignal delivers an operator command to the running daemon.
func RunSignal(pidPath string, cmd daemon.Command) error {
	if pidPath == "" {
		pidPath = install.PIDFile()
	}
	sig, ok := daemon.SignalFor(cmd)
	if !ok {
		return fmt.Errorf("no signal for command %s", cmd)
	}
	pid, err := ReadPID(pidPath)
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to signal process: %w", err)
	}
	Printer.Printf("Sent %s (%s) to process %d\n", cmd, sig, pid)
	return nil
}
