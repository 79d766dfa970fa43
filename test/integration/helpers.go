package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/proxyrunner/internal/config"
	"git.home.luguber.info/inful/proxyrunner/internal/pipeline"
)

// harness wires the launch pipeline to stub external tools. Every stub
// appends its own name to a shared invocation log so tests can assert
// ordering, and the build and elevation stubs dump their environment so
// tests can check what the child processes actually saw.
type harness struct {
	dir     string
	cfg     *config.Config
	logPath string
}

// newHarness builds a harness whose default stubs model the happy path: the
// flush succeeds, the build emits exactly one matching artifact record, the
// elevation command passes through, and the engine exits 0.
func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:     dir,
		logPath: filepath.Join(dir, "invocations.log"),
	}

	engine := h.stubEngine(t, "exit 0")
	h.stubCargo(t, artifactRecord(engine))
	h.stubIP(t, "exit 0")
	h.stubSudo(t)

	cfg := config.Default()
	cfg.Target.Dir = dir
	cfg.Build.Command = filepath.Join(dir, "cargo")
	cfg.Flush.Command = filepath.Join(dir, "ip")
	cfg.Launch.Command = filepath.Join(dir, "sudo")
	h.cfg = cfg
	return h
}

// writeStub writes an executable shell script that records its invocation
// before running body.
func (h *harness) writeStub(t *testing.T, name, body string) string {
	t.Helper()
	script := fmt.Sprintf("#!/bin/sh\necho %s >> %s\n%s\n", name, h.logPath, body)
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755), "write stub %s", name)
	return path
}

// stubEngine installs the engine binary the artifact records point at.
func (h *harness) stubEngine(t *testing.T, body string) string {
	return h.writeStub(t, "proxy_engine", body)
}

// stubCargo installs a build stub that dumps its environment and prints the
// given artifact records, one JSON line each.
func (h *harness) stubCargo(t *testing.T, records ...string) {
	body := fmt.Sprintf("env > %s\n", filepath.Join(h.dir, "cargo.env"))
	for _, r := range records {
		body += "printf '%s\\n' '" + r + "'\n"
	}
	h.writeStub(t, "cargo", body)
}

// stubCargoFailing installs a build stub that writes a diagnostic to stderr
// and exits non-zero, the way a compile error does.
func (h *harness) stubCargoFailing(t *testing.T, code int) {
	h.writeStub(t, "cargo", fmt.Sprintf("echo 'error: could not compile' >&2\nexit %d", code))
}

func (h *harness) stubIP(t *testing.T, body string) {
	h.writeStub(t, "ip", body)
}

// stubSudo installs an elevation stub that dumps its environment, strips the
// leading "-E --", and execs the remaining argv.
func (h *harness) stubSudo(t *testing.T) {
	h.writeStub(t, "sudo", fmt.Sprintf("env > %s\nshift 2\nexec \"$@\"", filepath.Join(h.dir, "sudo.env")))
}

// artifactRecord renders one build tool JSON line naming the given
// executable as the proxy_engine binary artifact.
func artifactRecord(executable string) string {
	return fmt.Sprintf(`{"reason":"compiler-artifact","target":{"name":"proxy_engine"},"profile":{"test":false},"filenames":[%q],"executable":%q}`,
		executable, executable)
}

// run executes the full launch pipeline against the stubbed tools.
func (h *harness) run(t *testing.T, engineArg, buildMode string) (*pipeline.LaunchReport, error) {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipe := pipeline.New(h.cfg, pipeline.WithLogger(quiet))
	return pipe.Run(context.Background(), pipeline.Request{EngineArg: engineArg, BuildMode: buildMode})
}

// invocations returns the recorded tool invocation names in order.
func (h *harness) invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(h.logPath)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err, "read invocation log")
	return strings.Fields(string(data))
}

// envOf returns the environment dump captured by the named stub.
func (h *harness) envOf(t *testing.T, tool string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.dir, tool+".env"))
	require.NoError(t, err, "env dump for %s", tool)
	return string(data)
}

// reportDigest is the deterministic projection of a launch report used for
// golden comparison. Identifiers, timestamps, durations, and absolute paths
// vary per run and are reduced to presence booleans or dropped.
type reportDigest struct {
	SchemaVersion    int      `json:"schema_version"`
	Trigger          string   `json:"trigger"`
	Target           string   `json:"target"`
	EngineArg        string   `json:"engine_arg,omitempty"`
	BuildMode        string   `json:"build_mode,omitempty"`
	Outcome          string   `json:"outcome"`
	Transitions      []string `json:"transitions"`
	ChildExit        *int     `json:"child_exit,omitempty"`
	Errors           int      `json:"errors"`
	ArtifactResolved bool     `json:"artifact_resolved"`
	ArtifactDigested bool     `json:"artifact_digested"`
}

func digestReport(r *pipeline.LaunchReport) reportDigest {
	d := reportDigest{
		SchemaVersion:    r.SchemaVersion,
		Trigger:          r.Trigger,
		Target:           r.Target,
		EngineArg:        r.EngineArg,
		BuildMode:        r.BuildMode,
		Outcome:          string(r.Outcome),
		ChildExit:        r.ChildExit,
		Errors:           len(r.Errors),
		ArtifactResolved: r.Artifact != "",
		ArtifactDigested: r.ArtifactDigest != "",
	}
	for _, s := range r.Transitions {
		d.Transitions = append(d.Transitions, string(s))
	}
	return d
}

// verifyLaunchReport compares the report digest against a golden file.
func verifyLaunchReport(t *testing.T, report *pipeline.LaunchReport, goldenPath string, update bool) {
	t.Helper()
	require.NotNil(t, report, "pipeline returned no report")

	actualJSON, err := json.MarshalIndent(digestReport(report), "", "  ")
	require.NoError(t, err, "marshal report digest")

	if update {
		require.NoError(t, os.MkdirAll(filepath.Dir(goldenPath), 0o750), "create golden directory")
		require.NoError(t, os.WriteFile(goldenPath, append(actualJSON, '\n'), 0o600), "write golden file")
		t.Logf("Updated golden file: %s", goldenPath)
		return
	}

	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err, "failed to read golden file: %s", goldenPath)
	require.JSONEq(t, string(goldenData), string(actualJSON), "launch report digest mismatch")
}
