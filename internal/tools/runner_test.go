package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesStdout(t *testing.T) {
	res, err := ExecRunner{}.Run(context.Background(), Command{Name: "echo", Args: []string{"hello"}})
	if err != nil {
		t.Fatalf("run echo: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("stdout %q, want hello", res.Stdout)
	}
	if res.Duration <= 0 {
		t.Errorf("expected a positive duration")
	}
}

func TestRunCapturesStderrAndExitCode(t *testing.T) {
	res, err := ExecRunner{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo oops 1>&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("run sh: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("stderr %q missing diagnostic", res.Stderr)
	}
	if !strings.Contains(res.Combined(), "oops") {
		t.Errorf("Combined() missing stderr content")
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), Command{Name: "definitely-not-a-real-tool-xyz"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 5"},
		Timeout: 50 * time.Millisecond,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestRunWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	res, err := ExecRunner{}.Run(context.Background(), Command{Name: "pwd", Dir: dir})
	if err != nil {
		t.Fatalf("run pwd: %v", err)
	}
	if strings.TrimSpace(res.Stdout) == "" {
		t.Fatalf("expected working directory on stdout")
	}
	// Compare the final element only; TempDir may sit behind a symlink on darwin.
	if !strings.HasSuffix(strings.TrimSpace(res.Stdout), lastPathElement(dir)) {
		t.Errorf("pwd %q does not end with %q", res.Stdout, lastPathElement(dir))
	}
}

func TestRunEnvAppended(t *testing.T) {
	res, err := ExecRunner{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo $JAVELIN_TEST_VALUE"},
		Env:  []string{"JAVELIN_TEST_VALUE=present"},
	})
	if err != nil {
		t.Fatalf("run sh: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "present" {
		t.Errorf("stdout %q, want injected env value", res.Stdout)
	}
}

func lastPathElement(p string) string {
	parts := strings.Split(strings.TrimRight(p, "/"), "/")
	return parts[len(parts)-1]
}
