// Package persistence is a badger-backed workspace.Extension: it snapshots
// every table/kv log's live entries to an embedded Badger database on
// WhenReady (load) and on each observed change (save), giving a workspace
// durability across process restarts without the CRDT substrate itself
// knowing anything about disk.
//
// Grounded on kasuganosora-sqlexec's pkg/resource/badger.BadgerDataSource
// for the connect/close/stats lifecycle shape, simplified: our CRDT
// document is state-based (no WAL/op-log to replay), so Load only needs to
// restore the latest snapshot, not replay a sequence of operations — a
// deliberate simplification from the teacher's StorageEngine.Recover noted
// in SPEC_FULL.md's "Supplemented features" section.
package persistence

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/Leftium/epicenter/pkg/lww"
	"github.com/Leftium/epicenter/pkg/workspace"
)

// Config mirrors the teacher's DataSourceConfig: a literal options struct,
// no config-file library.
type Config struct {
	DataDir  string
	InMemory bool
}

// Provider is a workspace.Extension that persists one or more named logs
// into one Badger database, each log's entries under its own key prefix.
type Provider struct {
	workspace.NoOpExtension

	cfg Config
	db  *badger.DB

	logs map[string]*lww.Log

	stats Stats
}

// Stats mirrors the shape of the teacher's badger resource Stats struct.
type Stats struct {
	LogCount int
	KeyCount int64
}

// New returns a factory suitable for workspace.Client.WithExtension. logs
// maps a persisted-prefix name (e.g. "table:notes") to the already-opened
// Log that should be snapshotted under it.
func New(cfg Config, logs map[string]*lww.Log) workspace.Factory {
	return func(c *workspace.Client) (workspace.Extension, error) {
		p := &Provider{cfg: cfg, logs: logs}
		opts := badger.DefaultOptions(cfg.DataDir)
		if cfg.InMemory {
			opts = opts.WithInMemory(true)
		}
		opts = opts.WithLogger(nil)
		db, err := badger.Open(opts)
		if err != nil {
			return nil, fmt.Errorf("persistence: open badger: %w", err)
		}
		p.db = db
		for prefix, log := range logs {
			log.Observe(func(map[string]lww.Change) {
				_ = p.Save(prefix, log)
			})
		}
		return p, nil
	}
}

// WhenReady restores every registered log from its last snapshot.
func (p *Provider) WhenReady(ctx context.Context) error {
	for prefix, log := range p.logs {
		if err := p.Load(prefix, log); err != nil {
			return fmt.Errorf("persistence: load %q: %w", prefix, err)
		}
	}
	return nil
}

// Save snapshots log's live entries under prefix, removing stored keys that
// are no longer live.
func (p *Provider) Save(prefix string, log *lww.Log) error {
	entries := log.Entries()
	payload := make(map[string][]byte, len(entries))
	for key, entry := range entries {
		raw, err := bson.Marshal(bson.M{"v": entry.Val, "ts": entry.Ts.Millis()})
		if err != nil {
			return err
		}
		payload[key] = raw
	}
	prefixBytes := []byte(prefix + "/")
	return p.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefixBytes})
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			if _, live := payload[string(k[len(prefixBytes):])]; !live {
				stale = append(stale, k)
			}
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for key, raw := range payload {
			if err := txn.Set([]byte(prefix+"/"+key), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load restores log's entries from the snapshot under prefix, if any.
func (p *Provider) Load(prefix string, log *lww.Log) error {
	prefixBytes := []byte(prefix + "/")
	return p.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefixBytes):])
			err := item.Value(func(raw []byte) error {
				var doc bson.M
				if err := bson.Unmarshal(raw, &doc); err != nil {
					return err
				}
				return log.Set(key, doc["v"])
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Destroy closes the Badger database.
func (p *Provider) Destroy(ctx context.Context) error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// CollectStats reports log/key counts, mirroring the teacher's badger Stats
// struct.
func (p *Provider) CollectStats() Stats {
	var keyCount int64
	for _, log := range p.logs {
		keyCount += int64(log.Size())
	}
	return Stats{LogCount: len(p.logs), KeyCount: keyCount}
}
