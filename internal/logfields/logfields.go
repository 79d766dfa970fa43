package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyState      = "state"
	KeyTarget     = "target"
	KeyArtifact   = "artifact"
	KeyDigest     = "digest"
	KeyBuildMode  = "build_mode"
	KeyEngineArg  = "engine_arg"
	KeyCommand    = "command"
	KeyDurationMS = "duration_ms"
	KeyExitCode   = "exit_code"
	KeyReason     = "reason"
	KeyCommit     = "commit"
	KeyBranch     = "branch"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Target(name string) slog.Attr    { return slog.String(KeyTarget, name) }
func Artifact(path string) slog.Attr  { return slog.String(KeyArtifact, path) }
func Digest(hex string) slog.Attr     { return slog.String(KeyDigest, hex) }
func BuildMode(mode string) slog.Attr { return slog.String(KeyBuildMode, mode) }
func EngineArg(arg string) slog.Attr  { return slog.String(KeyEngineArg, arg) }
func Command(argv string) slog.Attr   { return slog.String(KeyCommand, argv) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func Commit(hash string) slog.Attr    { return slog.String(KeyCommit, hash) }
func Branch(name string) slog.Attr    { return slog.String(KeyBranch, name) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
