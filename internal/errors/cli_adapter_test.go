package errors

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: 0,
		},
		{
			name:     "validation error",
			err:      ValidationError("invalid input"),
			expected: 2,
		},
		{
			name:     "config error",
			err:      New(CategoryConfig, SeverityFatal, "bad config"),
			expected: 7,
		},
		{
			name:     "neighbor flush error",
			err:      New(CategoryNeighbor, SeverityFatal, "flush failed"),
			expected: 8,
		},
		{
			name:     "build error",
			err:      New(CategoryBuild, SeverityFatal, "build failed"),
			expected: 11,
		},
		{
			name:     "resolve ambiguity",
			err:      New(CategoryResolve, SeverityFatal, "2 artifacts matched"),
			expected: 11,
		},
		{
			name:     "launch error",
			err:      New(CategoryLaunch, SeverityFatal, "binary missing"),
			expected: 12,
		},
		{
			name:     "unclassified error",
			err:      fmt.Errorf("unknown error"),
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adapter.ExitCodeFor(tt.err)
			if got != tt.expected {
				t.Errorf("ExitCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	// Config/validation errors present the bare message; others keep the category prefix.
	cfgErr := New(CategoryConfig, SeverityFatal, "configuration file not found: proxyrunner.yaml")
	if got := adapter.FormatError(cfgErr); got != cfgErr.Message {
		t.Errorf("FormatError(config) = %q, want bare message %q", got, cfgErr.Message)
	}

	resErr := Wrap(fmt.Errorf("3 candidates"), CategoryResolve, SeverityFatal, "ambiguous artifact match")
	got := adapter.FormatError(resErr)
	if !strings.HasPrefix(got, "resolve: ") || !strings.Contains(got, "3 candidates") {
		t.Errorf("FormatError(resolve) = %q, want category prefix and cause", got)
	}

	verbose := NewCLIErrorAdapter(true, slog.Default())
	if got := verbose.FormatError(cfgErr); got != cfgErr.Error() {
		t.Errorf("verbose FormatError = %q, want full %q", got, cfgErr.Error())
	}
}
