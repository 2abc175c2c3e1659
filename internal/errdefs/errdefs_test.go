package errdefs

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"new error", New(KindConfig, "bad pattern"), KindConfig},
		{"wrapped error", Wrap(KindIo, io.ErrUnexpectedEOF, "read failed"), KindIo},
		{"formatted error", Newf(KindDocker, "container %s failed", "abc"), KindDocker},
		{"plain error", errors.New("plain"), KindOther},
		{"nil-adjacent fmt wrap", fmt.Errorf("outer: %w", New(KindExecution, "inner")), KindExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	err := New(KindUnsupportedPlatform, "no sandbox mechanism")
	if !IsKind(err, KindUnsupportedPlatform) {
		t.Error("IsKind should match the error's own kind")
	}
	if IsKind(err, KindConfig) {
		t.Error("IsKind should not match a different kind")
	}
	if IsKind(errors.New("plain"), KindOther) {
		t.Error("IsKind should not classify unclassified errors")
	}
}

func TestIsKindWalksWrapChain(t *testing.T) {
	inner := New(KindConfig, "bad pattern")
	outer := Wrap(KindIo, inner, "failed to load settings")

	if KindOf(outer) != KindIo {
		t.Errorf("KindOf() = %v, want the outermost kind", KindOf(outer))
	}
	if !IsKind(outer, KindIo) {
		t.Error("IsKind should match the outermost kind")
	}
	if !IsKind(outer, KindConfig) {
		t.Error("IsKind should find a kind buried deeper in the chain")
	}
	if IsKind(outer, KindDocker) {
		t.Error("IsKind should not match a kind absent from the chain")
	}

	// A classified error at the bottom of a plain fmt wrap is still found.
	rewrapped := fmt.Errorf("outer: %w", outer)
	if !IsKind(rewrapped, KindConfig) {
		t.Error("IsKind should see through unclassified wrappers")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindProxy, cause, "failed to start proxy")

	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error message should include the cause, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "proxy error") {
		t.Errorf("error message should include the kind, got %q", err.Error())
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(KindIo, nil, "context"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestNewfWithCause(t *testing.T) {
	cause := errors.New("underlying")
	err := Newf(KindSerialization, "decode failed: %w", cause)

	if !errors.Is(err, cause) {
		t.Error("Newf with %w should preserve the cause for errors.Is")
	}
	msg := err.Error()
	if strings.Count(msg, "underlying") != 1 {
		t.Errorf("cause should appear exactly once in %q", msg)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindIo, "io"},
		{KindConfig, "config"},
		{KindExecution, "execution"},
		{KindUnsupportedPlatform, "unsupported platform"},
		{KindProxy, "proxy"},
		{KindDocker, "docker"},
		{KindCommandNotFound, "command not found"},
		{KindViolation, "violation"},
		{KindSerialization, "serialization"},
		{KindOther, "error"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
