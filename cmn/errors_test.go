package cmn

import (
	"fmt"
	"testing"

	stderrors "github.com/pkg/errors"
)

func TestNewErrorMessage(t *testing.T) {
	err := NewError(ProtocolTaskNotFound, "task %q missing", "abc")
	if err.Error() != "ProtocolTaskNotFound: task \"abc\" missing" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if err.Cause != nil {
		t.Fatalf("expected no cause, got %v", err.Cause)
	}
}

func TestWrapErrorUnwraps(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := WrapError(ApplyError, cause, "apply failed")
	if stderrors.Cause(err.Unwrap()) != cause {
		t.Fatalf("expected Unwrap to expose the original cause")
	}
}

func TestCodeOfAndIs(t *testing.T) {
	err := NewError(SyncPermissionDenied, "not yet")
	code, ok := CodeOf(err)
	if !ok || code != SyncPermissionDenied {
		t.Fatalf("unexpected CodeOf result: %v %v", code, ok)
	}
	if !Is(err, SyncPermissionDenied) {
		t.Fatal("expected Is to match SyncPermissionDenied")
	}
	if Is(err, ApplyError) {
		t.Fatal("expected Is to reject a different code")
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if _, ok := CodeOf(fmt.Errorf("plain")); ok {
		t.Fatal("expected plain error to carry no Code")
	}
}

func TestCodeStringFallback(t *testing.T) {
	if Code(9999).String() != "Code(9999)" {
		t.Fatalf("unexpected fallback string: %s", Code(9999).String())
	}
}
