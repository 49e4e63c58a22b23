// Package admin implements C6, the query/admin surface used by cmd/queuectl
// (and, indirectly, by anything else embedding this module as a library). It
// is a thin wrapper: Open builds the store and payload store a Surface uses,
// and cmd/queuectl opens one short-lived Surface per invocation, unlike the
// scheduler daemon which owns a single long-lived store.Store for the
// process's lifetime (spec.md §9, "singleton store" design note). Ported
// from the free functions in original_source's
// priority_queue/lib.py (priority_queue_add_job, _list_all, _list_next,
// _update_job, _clean_folder).
package admin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/macq/tomtom-priority-queue/internal/config"
	"github.com/macq/tomtom-priority-queue/internal/payloadstore"
	"github.com/macq/tomtom-priority-queue/internal/queueitem"
	"github.com/macq/tomtom-priority-queue/internal/store"
)

const (
	dbFileName      = "db.parquet"
	payloadsDirName = "payloads"
	daemonLogName   = "daemon.log"
	pidFileName     = "daemon.pid"
)

// Surface bundles the store and payload store one admin call needs.
type Surface struct {
	Home     string
	Store    *store.Store
	Payloads *payloadstore.Store
}

// Open constructs a Surface rooted at cfg.HomeFolder, loading the existing
// queue table if present.
func Open(cfg *config.Config) (*Surface, error) {
	payloads, err := payloadstore.New(filepath.Join(cfg.HomeFolder, payloadsDirName))
	if err != nil {
		return nil, fmt.Errorf("opening payload store: %w", err)
	}

	s, err := store.Open(filepath.Join(cfg.HomeFolder, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("opening queue store: %w", err)
	}

	return &Surface{Home: cfg.HomeFolder, Store: s, Payloads: payloads}, nil
}

// Add builds a queue item from (name, payload, reportType, priority), writes
// its payload blob, and persists the row immediately.
func (sf *Surface) Add(name string, reportType queueitem.ReportType, payload []byte, priority int64) (*queueitem.Item, error) {
	item, err := queueitem.New(sf.Payloads, name, reportType, payload, priority)
	if err != nil {
		return nil, fmt.Errorf("creating queue item: %w", err)
	}

	sf.Store.Insert(item)
	if err := sf.Store.Flush(); err != nil {
		return nil, fmt.Errorf("persisting new item %s: %w", item.UID, err)
	}
	return item, nil
}

// List proxies store.Filter.
func (sf *Surface) List(f store.Filter) []*queueitem.Item {
	return sf.Store.Filter(f)
}

// ListNext proxies store.Next.
func (sf *Surface) ListNext(n int) []*queueitem.Item {
	return sf.Store.Next(n)
}

// Update loads the item by uid, calls Update on it, and flushes.
func (sf *Surface) Update(uid string, name *string, priority *int64, cancel *bool, payload []byte) (*queueitem.Item, error) {
	item := sf.Store.Get(uid)
	if item == nil {
		return nil, fmt.Errorf("no queue item with uid %s", uid)
	}

	if err := item.Update(sf.Payloads, name, priority, cancel, payload); err != nil {
		return nil, err
	}

	if err := sf.Store.Upsert([]*queueitem.Item{item}, true); err != nil {
		return nil, fmt.Errorf("persisting update to %s: %w", uid, err)
	}
	return item, nil
}

// Describe proxies store.Describe.
func (sf *Surface) Describe() store.Metrics {
	return sf.Store.Describe()
}

// Purge empties the queue store and deletes every auxiliary file: the
// database, the daemon log, the pid file, and the payload directory (per
// spec.md §4.6, mirroring priority_queue_clean_folder).
func (sf *Surface) Purge() error {
	if err := sf.Store.Purge(); err != nil {
		return fmt.Errorf("purging queue store: %w", err)
	}

	for _, name := range []string{daemonLogName, pidFileName} {
		path := filepath.Join(sf.Home, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}

	payloadsDir := filepath.Join(sf.Home, payloadsDirName)
	if err := os.RemoveAll(payloadsDir); err != nil {
		return fmt.Errorf("removing payload directory %s: %w", payloadsDir, err)
	}
	return nil
}
