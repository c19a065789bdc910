// Package sync is a websocket-based peer relay workspace.Extension:
// connects to a peer's sync endpoint, forwards every local log change as a
// wire message, and applies every incoming message to the matching local
// log. This is deliberately a thin relay, not a merge protocol — the CRDT
// logs it relays into already know how to merge concurrent writes
// (spec.md's "the sync layer carries bytes, the document layer carries
// meaning").
//
// Grounded on launix-de-memcp's scm/network.go websocket server/client
// pair (upgrader + read-loop, dial + write) for connection handling.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Leftium/epicenter/pkg/lww"
	"github.com/Leftium/epicenter/pkg/workspace"
)

// Config configures a Provider.
type Config struct {
	// PeerURL, if non-empty, is dialed as a client on WhenReady.
	PeerURL string
	// ListenAddr, if non-empty, is served as a websocket peer endpoint.
	ListenAddr string
	Path       string
}

// wireMessage is the relay's on-the-wire envelope.
type wireMessage struct {
	LogPrefix string `json:"log"`
	Key       string `json:"key"`
	Value     any    `json:"value"`
	Deleted   bool   `json:"deleted"`
}

// Provider relays changes between a set of named logs and connected peers.
type Provider struct {
	workspace.NoOpExtension

	cfg  Config
	logs map[string]*lww.Log

	mu    sync.Mutex
	peers []*websocket.Conn

	upgrader websocket.Upgrader
}

// New returns a factory suitable for workspace.Client.WithExtension.
func New(cfg Config, logs map[string]*lww.Log) workspace.Factory {
	return func(c *workspace.Client) (workspace.Extension, error) {
		p := &Provider{
			cfg:      cfg,
			logs:     logs,
			upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		}
		p.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
		for prefix, log := range logs {
			prefix, log := prefix, log
			log.Observe(func(changes map[string]lww.Change) {
				p.broadcastLocal(prefix, log, changes)
			})
		}
		return p, nil
	}
}

// ServeHTTP upgrades an incoming connection to a peer relay socket.
func (p *Provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p.addPeer(conn)
	go p.readLoop(conn)
}

// WhenReady dials cfg.PeerURL if configured.
func (p *Provider) WhenReady(ctx context.Context) error {
	if p.cfg.PeerURL == "" {
		return nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.cfg.PeerURL, nil)
	if err != nil {
		return fmt.Errorf("sync: dial %s: %w", p.cfg.PeerURL, err)
	}
	p.addPeer(conn)
	go p.readLoop(conn)
	return nil
}

func (p *Provider) addPeer(conn *websocket.Conn) {
	p.mu.Lock()
	p.peers = append(p.peers, conn)
	p.mu.Unlock()
}

func (p *Provider) readLoop(conn *websocket.Conn) {
	defer func() { _ = recover() }()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			p.removePeer(conn)
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		log, ok := p.logs[msg.LogPrefix]
		if !ok {
			continue
		}
		if msg.Deleted {
			log.Delete(msg.Key)
		} else {
			_ = log.Set(msg.Key, msg.Value)
		}
	}
}

func (p *Provider) removePeer(conn *websocket.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.peers {
		if c == conn {
			p.peers = append(p.peers[:i], p.peers[i+1:]...)
			return
		}
	}
}

func (p *Provider) broadcastLocal(prefix string, log *lww.Log, changes map[string]lww.Change) {
	p.mu.Lock()
	peers := append([]*websocket.Conn(nil), p.peers...)
	p.mu.Unlock()
	if len(peers) == 0 {
		return
	}
	for key, c := range changes {
		msg := wireMessage{LogPrefix: prefix, Key: key, Value: c.NewValue, Deleted: c.Action == "delete"}
		raw, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		for _, conn := range peers {
			_ = conn.WriteMessage(websocket.TextMessage, raw)
		}
	}
}

// Destroy closes every peer connection.
func (p *Provider) Destroy(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.peers {
		_ = c.Close()
	}
	return nil
}
