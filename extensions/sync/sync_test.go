package sync_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Leftium/epicenter/extensions/sync"
	"github.com/Leftium/epicenter/pkg/crdt"
	"github.com/Leftium/epicenter/pkg/hlc"
	"github.com/Leftium/epicenter/pkg/lww"
)

func TestSync_RelaysLocalChangeToPeer(t *testing.T) {
	serverLog := lww.Open(crdt.NewDoc("server-doc", true), "table:notes", hlc.NewSource("server"))
	serverProvider := sync.New(sync.Config{}, map[string]*lww.Log{"table:notes": serverLog})
	serverExt, err := serverProvider(nil)
	if err != nil {
		t.Fatalf("server factory failed: %v", err)
	}

	handler, ok := serverExt.(http.Handler)
	if !ok {
		t.Fatalf("expected sync.Provider to implement http.Handler")
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	clientLog := lww.Open(crdt.NewDoc("client-doc", true), "table:notes", hlc.NewSource("client"))
	peerURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientProvider := sync.New(sync.Config{PeerURL: peerURL}, map[string]*lww.Log{"table:notes": clientLog})
	clientExt, err := clientProvider(nil)
	if err != nil {
		t.Fatalf("client factory failed: %v", err)
	}
	if err := clientExt.WhenReady(context.Background()); err != nil {
		t.Fatalf("WhenReady (dial) failed: %v", err)
	}

	if err := serverLog.Set("n1:title", "hello from server"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e, ok := clientLog.Get("n1:title"); ok && e.Val == "hello from server" {
			_ = clientExt.Destroy(context.Background())
			_ = serverExt.Destroy(context.Background())
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected the client log to observe the server's change within the deadline")
}
