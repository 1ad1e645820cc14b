// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// RequireVM skips the test if the SYNGUARD_VM_TEST environment variable is not set.
// Tests that touch the real kernel (nftables sets, ipset) only run there.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv("SYNGUARD_VM_TEST") == "" {
		t.Skip("Skipping test: requires SYNGUARD_VM_TEST environment")
	}
}

// RequireShell skips the test when /bin/sh is not available.
func RequireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("Skipping test: no sh in PATH")
	}
}

// WriteScript writes an executable shell script into a temp dir and
// returns its path.
func WriteScript(t *testing.T, name, body string) string {
	t.Helper()
	RequireShell(t)
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}
