package epierr_test

import (
	"errors"
	"testing"

	"github.com/Leftium/epicenter/pkg/epierr"
)

func TestIsCode(t *testing.T) {
	err := epierr.NewFSError(epierr.ENOENT, "/a.txt")
	if !epierr.IsCode(err, epierr.ENOENT) {
		t.Fatalf("expected IsCode to match ENOENT")
	}
	if epierr.IsCode(err, epierr.EISDIR) {
		t.Fatalf("expected IsCode to reject a mismatched code")
	}
	if epierr.IsCode(errors.New("plain"), epierr.ENOENT) {
		t.Fatalf("expected IsCode to reject a non-FSError")
	}
}

func TestExtensionError_Unwrap(t *testing.T) {
	inner := errors.New("dial failed")
	err := &epierr.ExtensionError{Key: "sync", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatalf("expected errors.Is to find the wrapped inner error")
	}
}
