package launch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeElevation writes a stub that mimics `sudo -E -- <binary> [arg]`:
// it records the call, drops the option tokens, and execs the target.
func fakeElevation(t *testing.T, markerFile string) string {
	t.Helper()
	script := "#!/bin/sh\n"
	if markerFile != "" {
		script += "echo invoked > " + markerFile + "\n"
	}
	script += "shift 2\nexec \"$@\"\n"
	path := filepath.Join(t.TempDir(), "sudo")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxy_engine")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testEnv() []string {
	return []string{"PATH=" + os.Getenv("PATH")}
}

func TestRunSuccess(t *testing.T) {
	runner := NewElevatedRunner(fakeElevation(t, ""), nil)
	engine := writeEngine(t, "#!/bin/sh\nexit 0\n")

	if err := runner.Run(context.Background(), Spec{BinaryPath: engine, Env: testEnv()}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

func TestRunPropagatesExitCode(t *testing.T) {
	runner := NewElevatedRunner(fakeElevation(t, ""), nil)
	engine := writeEngine(t, "#!/bin/sh\nexit 3\n")

	err := runner.Run(context.Background(), Spec{BinaryPath: engine, Env: testEnv()})
	code, ok := IsExitError(err)
	if !ok {
		t.Fatalf("Run() = %v, want ExitError", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestRunForwardsArgAndEnv(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "seen")
	runner := NewElevatedRunner(fakeElevation(t, ""), nil)
	engine := writeEngine(t, "#!/bin/sh\nprintf '%s|%s|%s' \"$1\" \"$RUST_LOG\" \"$RUST_BACKTRACE\" > "+outFile+"\n")

	env := append(testEnv(),
		"RUST_LOG=e2d2=info,proxy_engine=info,proxyengine=info",
		"RUST_BACKTRACE=1")
	err := runner.Run(context.Background(), Spec{BinaryPath: engine, Arg: "engine.toml", Env: env})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	got, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatal(err)
	}
	want := "engine.toml|e2d2=info,proxy_engine=info,proxyengine=info|1"
	if string(got) != want {
		t.Errorf("child observed %q, want %q", got, want)
	}
}

func TestRunOmitsEmptyArg(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "argc")
	runner := NewElevatedRunner(fakeElevation(t, ""), nil)
	engine := writeEngine(t, "#!/bin/sh\nprintf '%d' \"$#\" > "+outFile+"\n")

	if err := runner.Run(context.Background(), Spec{BinaryPath: engine, Env: testEnv()}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got, _ := os.ReadFile(outFile)
	if string(got) != "0" {
		t.Errorf("child argc = %s, want 0", got)
	}
}

func TestRunValidatesBeforeElevation(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "marker")
	runner := NewElevatedRunner(fakeElevation(t, marker), nil)

	err := runner.Run(context.Background(), Spec{
		BinaryPath: filepath.Join(t.TempDir(), "never-built"),
		Env:        testEnv(),
	})
	if err == nil {
		t.Fatal("Run() with missing binary should fail")
	}
	// The OS-level cause stays visible and the elevation command never runs.
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error should wrap fs.ErrNotExist: %v", err)
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Error("elevation command was invoked despite failed validation")
	}
}

func TestRunCanceledContext(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "marker")
	runner := NewElevatedRunner(fakeElevation(t, marker), nil)
	engine := writeEngine(t, "#!/bin/sh\nexit 0\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runner.Run(ctx, Spec{BinaryPath: engine, Env: testEnv()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Error("elevation command was invoked despite canceled context")
	}
}

func TestIsExitError(t *testing.T) {
	if _, ok := IsExitError(errors.New("plain")); ok {
		t.Error("IsExitError(plain error) = true, want false")
	}
	if _, ok := IsExitError(nil); ok {
		t.Error("IsExitError(nil) = true, want false")
	}
	code, ok := IsExitError(&ExitError{Code: 42})
	if !ok || code != 42 {
		t.Errorf("IsExitError(ExitError{42}) = %d, %v", code, ok)
	}
	if !strings.Contains((&ExitError{Code: 42}).Error(), "42") {
		t.Error("ExitError message should include the code")
	}
}
