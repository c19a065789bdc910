// Package workspace implements C5: the workspace client that owns one
// crdt.Doc, binds tables and KV stores onto it, and exposes a progressive
// extension builder.
//
// Go has no TS-style conditional/mapped types, so the builder's "each
// withExtension call narrows the accumulated type" behavior is reworked
// into an explicit string-keyed registry plus a typed accessor
// (GetExtension[T]) — the same "untyped map + typed getter" shape the
// teacher uses for TableMetaData.tables + GetTableByName. See DESIGN.md's
// pkg/workspace entry.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Leftium/epicenter/pkg/action"
	"github.com/Leftium/epicenter/pkg/crdt"
	"github.com/Leftium/epicenter/pkg/field"
	"github.com/Leftium/epicenter/pkg/hlc"
	"github.com/Leftium/epicenter/pkg/kv"
	"github.com/Leftium/epicenter/pkg/table"
)

// Extension is the lifecycle surface a withExtension factory's return value
// may implement. Both methods are optional in spirit — NoOpExtension gives
// embedders zero-cost defaults.
type Extension interface {
	// WhenReady blocks until the extension has finished any async setup
	// (e.g. replaying a persisted snapshot, dialing a sync peer).
	WhenReady(ctx context.Context) error
	// Destroy releases the extension's resources. Called during
	// Client.Destroy; errors are collected, not fail-fast (every extension
	// gets a chance to clean up regardless of a sibling's failure).
	Destroy(ctx context.Context) error
}

// NoOpExtension can be embedded by extensions with nothing to wait for or
// tear down.
type NoOpExtension struct{}

func (NoOpExtension) WhenReady(context.Context) error { return nil }
func (NoOpExtension) Destroy(context.Context) error   { return nil }

// Factory builds an extension bound to a live Client.
type Factory func(c *Client) (Extension, error)

// Client is one workspace: a CRDT document, its tables and KV stores, and
// whatever extensions/actions have been attached to it.
type Client struct {
	doc   *crdt.Doc
	clock *hlc.Source

	mu      sync.RWMutex
	tables  map[string]*table.Table
	stores  map[string]*kv.Store

	extMu      sync.Mutex
	extensions map[string]Extension
	extOrder   []string

	actions *action.Registry
}

// New creates a workspace backed by a fresh CRDT document identified by
// guid. gc is recorded on the document as crdt.Doc.GC (an advisory flag
// that nothing in this module reads).
func New(guid string, nodeID string, gc bool) *Client {
	return &Client{
		doc:        crdt.NewDoc(guid, gc),
		clock:      hlc.NewSource(nodeID),
		tables:     make(map[string]*table.Table),
		stores:     make(map[string]*kv.Store),
		extensions: make(map[string]Extension),
		actions:    action.NewRegistry(),
	}
}

// Doc returns the underlying CRDT document, for extensions that need
// direct access to sequences/maps/texts outside the table/kv abstractions
// (e.g. extensions/persistence, pkg/filetree, pkg/content).
func (c *Client) Doc() *crdt.Doc { return c.doc }

// Clock returns the workspace's shared HLC source.
func (c *Client) Clock() *hlc.Source { return c.clock }

// WithTable compiles and attaches a table definition, returning it for
// immediate use.
func (c *Client) WithTable(def table.Definition) (*table.Table, error) {
	t, err := table.New(c.doc, c.clock, def)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tables[def.ID] = t
	c.mu.Unlock()
	return t, nil
}

// Table looks up a previously attached table by id.
func (c *Client) Table(id string) (*table.Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[id]
	return t, ok
}

// WithKV compiles and attaches a KV store definition.
func (c *Client) WithKV(def kv.Definition) (*kv.Store, error) {
	s, err := kv.New(c.doc, c.clock, def)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.stores[def.ID] = s
	c.mu.Unlock()
	return s, nil
}

// KV looks up a previously attached KV store by id.
func (c *Client) KV(id string) (*kv.Store, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stores[id]
	return s, ok
}

// ensure Field/table/kv packages stay imported even if a caller only uses
// the workspace indirectly via extensions (keeps the re-export surface
// explicit rather than relying on transitive imports).
var _ = field.KindID

// WithExtension builds and registers an extension under key. The factory
// runs synchronously; use WhenReady afterward to wait for async setup.
func (c *Client) WithExtension(key string, factory Factory) (*Client, error) {
	ext, err := factory(c)
	if err != nil {
		return nil, fmt.Errorf("workspace: extension %q: %w", key, err)
	}
	c.extMu.Lock()
	if _, exists := c.extensions[key]; !exists {
		c.extOrder = append(c.extOrder, key)
	}
	c.extensions[key] = ext
	c.extMu.Unlock()
	return c, nil
}

// GetExtension fetches a previously attached extension by key, type-
// asserting it to T. ok is false if the key is unknown or the stored
// extension is not a T.
func GetExtension[T Extension](c *Client, key string) (t T, ok bool) {
	c.extMu.Lock()
	ext, exists := c.extensions[key]
	c.extMu.Unlock()
	if !exists {
		return t, false
	}
	t, ok = ext.(T)
	return t, ok
}

// WithActions registers every Def factory returns against the workspace's
// action registry, attached under owner.
func (c *Client) WithActions(owner string, factory func(c *Client) []action.Def) *Client {
	for _, def := range factory(c) {
		c.actions.Register(owner, def)
	}
	return c
}

// Actions returns the workspace's action registry.
func (c *Client) Actions() *action.Registry { return c.actions }

// WhenReady waits for every attached extension's WhenReady to return,
// fail-fast: the first error cancels the rest (spec.md's fail-fast
// requirement for readiness aggregation — golang.org/x/sync/errgroup is
// built exactly for this).
func (c *Client) WhenReady(ctx context.Context) error {
	c.extMu.Lock()
	exts := make([]Extension, 0, len(c.extOrder))
	for _, key := range c.extOrder {
		exts = append(exts, c.extensions[key])
	}
	c.extMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, ext := range exts {
		ext := ext
		g.Go(func() error { return ext.WhenReady(gctx) })
	}
	return g.Wait()
}

// Destroy tears down every attached extension in reverse registration order
// (spec.md §4.5: an extension that depends on one registered before it —
// e.g. extensions/sqliteview observing a table — must be torn down first).
// Unlike WhenReady, this is settled semantics, not fail-fast: a sibling's
// failure must not skip the rest, so errgroup (which cancels siblings on
// first error) is the wrong tool here — Destroy is called sequentially, in
// order, and every error is collected via errors.Join regardless of earlier
// failures.
func (c *Client) Destroy(ctx context.Context) error {
	c.extMu.Lock()
	exts := make([]Extension, 0, len(c.extOrder))
	for _, key := range c.extOrder {
		exts = append(exts, c.extensions[key])
	}
	c.extMu.Unlock()

	var errs []error
	for i := len(exts) - 1; i >= 0; i-- {
		if err := exts[i].Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	c.doc.Destroy()
	return errors.Join(errs...)
}

// Close implements io.Closer so a Client can be used with defer c.Close().
func (c *Client) Close() error { return c.Destroy(context.Background()) }

// Stats mirrors the shape of the teacher's badger resource Stats struct,
// adapted to workspace composition instead of storage-engine page counts.
type Stats struct {
	Tables     int
	KVStores   int
	Extensions int
	Actions    int
}

// Stats reports the workspace's current composition.
func (c *Client) Stats() Stats {
	c.mu.RLock()
	tables, stores := len(c.tables), len(c.stores)
	c.mu.RUnlock()
	c.extMu.Lock()
	exts := len(c.extensions)
	c.extMu.Unlock()
	return Stats{
		Tables:     tables,
		KVStores:   stores,
		Extensions: exts,
		Actions:    len(c.actions.IterateActions()),
	}
}
