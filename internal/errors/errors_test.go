package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestRunnerError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *RunnerError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CategoryConfig, SeverityFatal, "configuration invalid"),
			expected: "config (fatal): configuration invalid",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("file not found"), CategoryConfig, SeverityFatal, "failed to load config"),
			expected: "config (fatal): failed to load config: file not found",
		},
		{
			name:     "flush error with cause",
			err:      WrapFatal(fmt.Errorf("operation not permitted"), CategoryNeighbor, "neighbor cache flush failed"),
			expected: "neighbor (fatal): neighbor cache flush failed: operation not permitted",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.err.Error()
			if result != test.expected {
				t.Errorf("Error() = %q, want %q", result, test.expected)
			}
		})
	}
}

func TestRunnerError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("exit status 101")
	err := WrapFatal(cause, CategoryBuild, "toolchain failed")
	if !stdErrors.Is(err, cause) {
		t.Errorf("wrapped cause not reachable via errors.Is: %v", cause)
	}
}

func TestRunnerError_WithContext(t *testing.T) {
	err := New(CategoryResolve, SeverityFatal, "ambiguous artifact").
		WithContext("target", "proxy_engine").
		WithContext("matches", 2)

	if err.Context == nil {
		t.Fatal("Context should not be nil")
	}

	if err.Context["target"] != "proxy_engine" {
		t.Errorf("Context[target] = %v, want proxy_engine", err.Context["target"])
	}

	if err.Context["matches"] != 2 {
		t.Errorf("Context[matches] = %v, want 2", err.Context["matches"])
	}
}

func TestIsCategory(t *testing.T) {
	configErr := New(CategoryConfig, SeverityFatal, "config error")
	launchErr := New(CategoryLaunch, SeverityFatal, "launch error")
	standardErr := fmt.Errorf("standard error")

	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		expected bool
	}{
		{"config error matches config category", configErr, CategoryConfig, true},
		{"config error doesn't match launch category", configErr, CategoryLaunch, false},
		{"launch error matches launch category", launchErr, CategoryLaunch, true},
		{"standard error doesn't match any category", standardErr, CategoryConfig, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsCategory(test.err, test.category)
			if result != test.expected {
				t.Errorf("IsCategory() = %v, want %v", result, test.expected)
			}
		})
	}
}

func TestGetCategory(t *testing.T) {
	if got := GetCategory(New(CategoryNeighbor, SeverityFatal, "x")); got != CategoryNeighbor {
		t.Errorf("GetCategory = %v, want %v", got, CategoryNeighbor)
	}
	if got := GetCategory(fmt.Errorf("plain")); got != CategoryInternal {
		t.Errorf("GetCategory(plain) = %v, want %v", got, CategoryInternal)
	}
}
