// Package cargo drives the build toolchain and resolves the engine artifact.
//
// The toolchain is invoked in machine-readable mode and its stdout is treated
// as a stream of line-delimited JSON records. Resolution is strict: the
// target must match exactly one non-test executable artifact, and anything
// else (zero, several, a record without a path) aborts the run before the
// launch stage can start. There is no cache; every invocation re-resolves so
// the launched binary always reflects the current sources.
package cargo

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrBuildFailed marks a toolchain invocation that exited non-zero.
	ErrBuildFailed = errors.New("proxyrunner: build failed")
	// ErrNoMatch marks a build whose output contained no artifact for the target.
	ErrNoMatch = errors.New("proxyrunner: no matching artifact")
	// ErrAmbiguousMatch marks a build that produced several candidate artifacts.
	ErrAmbiguousMatch = errors.New("proxyrunner: ambiguous artifact match")
)

// Message is the subset of a toolchain JSON record the resolver reads.
type Message struct {
	Reason     string   `json:"reason"`
	Target     Target   `json:"target"`
	Profile    Profile  `json:"profile"`
	Filenames  []string `json:"filenames"`
	Executable string   `json:"executable"`
}

// Target names the compilation unit a record belongs to.
type Target struct {
	Name string `json:"name"`
}

// Profile carries the build profile flags; only the test marker matters here.
type Profile struct {
	Test bool `json:"test"`
}

// reasonArtifact tags records describing a finished compilation artifact.
const reasonArtifact = "compiler-artifact"

// maxLineBytes caps a single JSON record; artifact records carry file lists
// but stay well under this.
const maxLineBytes = 1 << 20

// Matches reports whether the record is a non-test artifact for the named
// target.
func (m Message) Matches(targetName string) bool {
	return m.Reason == reasonArtifact && !m.Profile.Test && m.Target.Name == targetName
}

// Path returns the record's executable path, preferring the explicit
// executable field over the filename list. Empty when the record names no
// runnable output.
func (m Message) Path() string {
	if m.Executable != "" {
		return m.Executable
	}
	if len(m.Filenames) > 0 {
		return m.Filenames[0]
	}
	return ""
}

// Request describes one build invocation.
type Request struct {
	TargetName string        // artifact name to resolve
	Dir        string        // toolchain working directory
	Mode       string        // optional flag appended verbatim (e.g. "--release")
	Env        []string      // complete subprocess environment
	Timeout    time.Duration // hard cap on the build; 0 disables
}

// Artifact is a successful resolution.
type Artifact struct {
	Path string
}

// Builder produces exactly one artifact per request or fails.
type Builder interface {
	Build(ctx context.Context, req Request) (Artifact, error)
}

// BinaryBuilder shells out to the toolchain binary.
type BinaryBuilder struct {
	command string
	logger  *slog.Logger
}

// NewBinaryBuilder builds a Builder around the given toolchain command.
func NewBinaryBuilder(command string, logger *slog.Logger) *BinaryBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &BinaryBuilder{command: command, logger: logger}
}

// Build runs `<command> build --message-format=json [mode]` and resolves the
// single matching artifact. Stderr passes straight through so compiler
// diagnostics reach the terminal as they happen; stdout is consumed entirely
// by the record scanner.
func (b *BinaryBuilder) Build(ctx context.Context, req Request) (Artifact, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	args := []string{"build", "--message-format=json"}
	if req.Mode != "" {
		args = append(args, req.Mode)
	}

	b.logger.Debug("invoking build toolchain",
		"command", b.command,
		"args", strings.Join(args, " "),
		"dir", req.Dir,
		"target", req.TargetName)

	cmd := exec.CommandContext(ctx, b.command, args...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return Artifact{}, fmt.Errorf("%w: starting %s: %v", ErrBuildFailed, b.command, err)
	}

	matches, scanErr := b.scanArtifacts(stdout, req.TargetName)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return Artifact{}, fmt.Errorf("%w: %w", ErrBuildFailed, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Artifact{}, fmt.Errorf("%w: %s exited with code %d", ErrBuildFailed, b.command, exitErr.ExitCode())
		}
		return Artifact{}, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	if scanErr != nil {
		return Artifact{}, fmt.Errorf("%w: reading build output: %v", ErrBuildFailed, scanErr)
	}

	return selectArtifact(matches, req.TargetName)
}

// scanArtifacts reads line-delimited JSON records and keeps those matching
// the target. Lines that do not parse are the toolchain's business (progress
// noise, mixed output) and are skipped with a debug note.
func (b *BinaryBuilder) scanArtifacts(r io.Reader, targetName string) ([]Message, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var matches []Message
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			b.logger.Debug("skipping non-JSON build output line", "line", truncate(line, 120))
			continue
		}
		if !msg.Matches(targetName) {
			continue
		}

		b.logger.Debug("matched artifact record",
			"target", msg.Target.Name,
			"path", msg.Path())
		matches = append(matches, msg)
	}
	return matches, scanner.Err()
}

// selectArtifact enforces the exactly-one rule. Ambiguity is reported with
// the match count and every candidate path; silent selection is never an
// option.
func selectArtifact(matches []Message, targetName string) (Artifact, error) {
	switch len(matches) {
	case 0:
		return Artifact{}, fmt.Errorf("%w: target %q produced no non-test executable artifact", ErrNoMatch, targetName)
	case 1:
		path := matches[0].Path()
		if path == "" {
			return Artifact{}, fmt.Errorf("artifact for target %q reports no executable path", targetName)
		}
		return Artifact{Path: path}, nil
	default:
		paths := make([]string, 0, len(matches))
		for _, m := range matches {
			p := m.Path()
			if p == "" {
				p = "(no path)"
			}
			paths = append(paths, p)
		}
		return Artifact{}, fmt.Errorf("%w: %d artifacts matched target %q: %s",
			ErrAmbiguousMatch, len(matches), targetName, strings.Join(paths, ", "))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
