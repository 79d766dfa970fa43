// Package neighbor clears the host neighbor (ARP/NDP) cache before a run.
// Stale entries from a previous engine instance poison the first packets of
// the next one, so the flush is unconditional and a failed flush aborts the
// whole invocation.
package neighbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrFlushFailed marks any failure to clear the neighbor cache.
var ErrFlushFailed = errors.New("proxyrunner: neighbor cache flush failed")

// Flusher clears the host neighbor cache.
type Flusher interface {
	Flush(ctx context.Context) error
}

// IPFlusher shells out to the ip(8) utility.
type IPFlusher struct {
	command string
	scope   string
	logger  *slog.Logger
}

// NewIPFlusher builds a flusher from config; command and scope arrive
// pre-defaulted ("ip", "all").
func NewIPFlusher(command, scope string, logger *slog.Logger) *IPFlusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &IPFlusher{command: command, scope: scope, logger: logger}
}

// Flush runs `ip neigh flush <scope>` and wraps any failure in
// ErrFlushFailed. The tool's combined output is folded into the error since
// ip(8) explains itself on stderr.
func (f *IPFlusher) Flush(ctx context.Context) error {
	args := []string{"neigh", "flush", f.scope}
	f.logger.Debug("flushing neighbor cache", "command", f.command, "args", strings.Join(args, " "))

	start := time.Now()
	cmd := exec.CommandContext(ctx, f.command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrFlushFailed, ctx.Err())
		}
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			err = fmt.Errorf("%v: %s", err, msg)
		}
		if permissionDenied(err, msg) {
			err = fmt.Errorf("%v (needs elevated privileges, try running via sudo)", err)
		}
		return fmt.Errorf("%w: %v", ErrFlushFailed, err)
	}

	f.logger.Debug("neighbor cache flushed",
		"scope", f.scope,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// permissionDenied detects the two shapes a privilege failure takes: the
// flush binary itself not being executable, or netlink refusing the flush in
// the tool's output.
func permissionDenied(err error, output string) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	return strings.Contains(output, "Operation not permitted") ||
		strings.Contains(output, "Permission denied")
}

// NoopFlusher does nothing. Test seam.
type NoopFlusher struct{}

func (NoopFlusher) Flush(context.Context) error { return nil }
