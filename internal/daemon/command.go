// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Command is an operator request handled between cycles.
type Command int

const (
	CommandTerminate Command = iota + 1
	CommandReopenLog
	CommandToggleTrace
	CommandDump
)

func (c Command) String() string {
	switch c {
	case CommandTerminate:
		return "terminate"
	case CommandReopenLog:
		return "reopen-log"
	case CommandToggleTrace:
		return "toggle-trace"
	case CommandDump:
		return "dump"
	}
	return "unknown"
}

// Signals lists the signals translated into commands.
var Signals = []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2}

// CommandFor maps a signal to its command.
func CommandFor(sig os.Signal) (Command, bool) {
	switch sig {
	case syscall.SIGTERM, syscall.SIGINT:
		return CommandTerminate, true
	case syscall.SIGHUP:
		return CommandReopenLog, true
	case syscall.SIGUSR1:
		return CommandToggleTrace, true
	case syscall.SIGUSR2:
		return CommandDump, true
	}
	return 0, false
}

// SignalFor is the inverse of CommandFor, used by the control commands.
func SignalFor(cmd Command) (syscall.Signal, bool) {
	switch cmd {
	case CommandTerminate:
		return syscall.SIGTERM, true
	case CommandReopenLog:
		return syscall.SIGHUP, true
	case CommandToggleTrace:
		return syscall.SIGUSR1, true
	case CommandDump:
		return syscall.SIGUSR2, true
	}
	return 0, false
}

// Send queues cmd. It never blocks the caller; when the queue is full the
// command is dropped and false is returned.
func (d *Daemon) Send(cmd Command) bool {
	select {
	case d.commands <- cmd:
		return true
	default:
		d.logger.Warn("Command queue full, dropping command", "command", cmd.String())
		return false
	}
}

// ForwardSignals relays Signals to the command channel until ctx is done
// or the returned stop function is called.
func (d *Daemon) ForwardSignals(ctx context.Context) (stop func()) {
	sigCh := make(chan os.Signal, len(Signals))
	signal.Notify(sigCh, Signals...)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if cmd, ok := CommandFor(sig); ok {
					d.logger.Debug("Received signal", "signal", sig.String(), "command", cmd.String())
					d.Send(cmd)
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		cancel()
		<-done
	}
}
