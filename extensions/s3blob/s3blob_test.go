package s3blob_test

import (
	"testing"

	"github.com/Leftium/epicenter/extensions/s3blob"
)

func TestShouldOffload(t *testing.T) {
	factory := s3blob.New(s3blob.Config{InlineThreshold: 10})
	ext, err := factory(nil)
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	p := ext.(*s3blob.Provider)

	if p.ShouldOffload([]byte("short")) {
		t.Fatalf("expected data under the threshold to stay inline")
	}
	if !p.ShouldOffload([]byte("this is definitely over ten bytes")) {
		t.Fatalf("expected data over the threshold to be offloaded")
	}
}

func TestShouldOffload_ZeroThresholdDisablesOffload(t *testing.T) {
	factory := s3blob.New(s3blob.Config{})
	ext, _ := factory(nil)
	p := ext.(*s3blob.Provider)

	if p.ShouldOffload([]byte("anything at all, arbitrarily long content here")) {
		t.Fatalf("expected a zero InlineThreshold to never offload")
	}
}
