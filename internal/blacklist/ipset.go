// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package blacklist

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"

	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/logging"
	"grimm.is/synguard/internal/netutil"
)

const (
	// DefaultTimeout bounds every tool invocation.
	DefaultTimeout = 5 * time.Second
	// DefaultNotMemberExitCode is what `ipset test` returns for a missing entry.
	DefaultNotMemberExitCode = 1
	// DefaultSetType is used when the set is created at startup.
	DefaultSetType = "hash:ip"
)

// Result is the outcome of one tool invocation that ran to completion.
type Result struct {
	ExitCode int
	Output   []byte
}

// Runner executes an argv. A non-zero exit is reported in Result, not as
// an error; errors mean the tool could not be run or was killed.
type Runner interface {
	Run(ctx context.Context, argv []string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, argv []string) (Result, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return Result{Output: out}, errors.Wrap(ctx.Err(), errors.KindTimeout, "blacklist tool timed out")
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.Exited() {
			return Result{ExitCode: exitErr.ExitCode(), Output: out}, nil
		}
		return Result{Output: out}, errors.Wrap(err, errors.KindExternal, "failed to run blacklist tool")
	}
	return Result{Output: out}, nil
}

// IPSetConfig configures the ipset backend.
type IPSetConfig struct {
	// Command is the tool invocation, split shell-style, e.g. "/usr/sbin/ipset"
	// or "sudo -n ipset".
	Command           string
	Set               string
	Timeout           time.Duration
	NotMemberExitCode int
	// CreateSet makes Ensure create the set (hash:ip) if it is missing.
	CreateSet bool
	Runner    Runner
}

// IPSet drives an ipset-compatible command line tool.
type IPSet struct {
	argv      []string
	set       string
	timeout   time.Duration
	notMember int
	create    bool
	runner    Runner
	logger    *logging.Logger
}

// NewIPSet validates cfg and returns the backend.
func NewIPSet(cfg IPSetConfig, logger *logging.Logger) (*IPSet, error) {
	argv, err := shlex.Split(cfg.Command)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindValidation, "invalid blacklist tool %q", cfg.Command)
	}
	if len(argv) == 0 {
		return nil, errors.New(errors.KindValidation, "blacklist tool is empty")
	}
	if cfg.Set == "" {
		return nil, errors.New(errors.KindValidation, "blacklist set name is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.NotMemberExitCode == 0 {
		cfg.NotMemberExitCode = DefaultNotMemberExitCode
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if logger == nil {
		logger = logging.WithComponent("blacklist")
	}

	return &IPSet{
		argv:      argv,
		set:       cfg.Set,
		timeout:   cfg.Timeout,
		notMember: cfg.NotMemberExitCode,
		create:    cfg.CreateSet,
		runner:    cfg.Runner,
		logger:    logger,
	}, nil
}

func (g *IPSet) String() string {
	return "ipset:" + g.set
}

func (g *IPSet) run(ctx context.Context, args ...string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	argv := make([]string, 0, len(g.argv)+len(args))
	argv = append(argv, g.argv...)
	argv = append(argv, args...)

	start := time.Now()
	res, err := g.runner.Run(ctx, argv)
	if err != nil {
		g.logger.Warn("Blacklist tool invocation failed",
			"command", strings.Join(argv, " "), "error", err, "elapsed", time.Since(start))
		return res, errors.Attr(err, "command", strings.Join(argv, " "))
	}
	g.logger.Debug("Blacklist tool invoked",
		"command", strings.Join(argv, " "), "exit_code", res.ExitCode, "elapsed", time.Since(start))
	return res, nil
}

func (g *IPSet) failure(op string, addr netutil.IPv4, res Result) error {
	output := string(bytes.TrimSpace(res.Output))
	g.logger.Warn("Blacklist tool returned failure",
		"op", op, "set", g.set, "addr", addr.String(), "exit_code", res.ExitCode, "output", output)
	err := errors.Errorf(errors.KindExternal, "ipset %s %s %s: exit status %d", op, g.set, addr, res.ExitCode)
	err = errors.Attr(err, "exit_code", res.ExitCode)
	return errors.Attr(err, "output", output)
}

// Add inserts addr. -exist makes re-adding a present address succeed.
func (g *IPSet) Add(ctx context.Context, addr netutil.IPv4) error {
	res, err := g.run(ctx, "add", g.set, addr.String(), "-exist")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return g.failure("add", addr, res)
	}
	g.logger.Info("Added to blacklist", "set", g.set, "addr", addr.String())
	return nil
}

// Remove deletes addr.
func (g *IPSet) Remove(ctx context.Context, addr netutil.IPv4) error {
	res, err := g.run(ctx, "del", g.set, addr.String(), "-exist")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return g.failure("del", addr, res)
	}
	g.logger.Info("Removed from blacklist", "set", g.set, "addr", addr.String())
	return nil
}

// Test reports membership. The configured not-member exit status means
// absent; any other non-zero status is a failure.
func (g *IPSet) Test(ctx context.Context, addr netutil.IPv4) (bool, error) {
	res, err := g.run(ctx, "test", g.set, addr.String())
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return true, nil
	case g.notMember:
		return false, nil
	}
	return false, g.failure("test", addr, res)
}

// Ensure creates the set when CreateSet is enabled.
func (g *IPSet) Ensure(ctx context.Context) error {
	if !g.create {
		return nil
	}
	res, err := g.run(ctx, "create", g.set, DefaultSetType, "-exist")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return errors.Attr(errors.Errorf(errors.KindExternal, "ipset create %s: exit status %d", g.set, res.ExitCode),
			"output", string(bytes.TrimSpace(res.Output)))
	}
	return nil
}
