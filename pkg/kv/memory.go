package kv

import (
	"bytes"
	"context"
	"iter"
	"sort"
	"sync"
)

// Memory is an in-memory Store implementation backed by a sorted map.
// It is safe for concurrent use and intended primarily for testing.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
	opts *Options
}

// NewMemory creates a new in-memory Store.
// Pass nil for default options.
func NewMemory(opts *Options) *Memory {
	return &Memory{
		data: make(map[string][]byte),
		opts: opts,
	}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	k := string(m.opts.encode(key))
	m.mu.RLock()
	v, ok := m.data[k]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to prevent mutation.
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	k := string(m.opts.encode(key))
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	m.data[k] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	k := string(m.opts.encode(key))
	m.mu.Lock()
	delete(m.data, k)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	prefixBytes := m.listPrefix(prefix)

	// Snapshot matching keys under read lock.
	m.mu.RLock()
	type kv struct {
		key string
		val []byte
	}
	var matches []kv
	for k, v := range m.data {
		if len(prefixBytes) == 0 || bytes.HasPrefix([]byte(k), prefixBytes) {
			cp := make([]byte, len(v))
			copy(cp, v)
			matches = append(matches, kv{k, cp})
		}
	}
	m.mu.RUnlock()

	// Sort for deterministic lexicographic order.
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].key < matches[j].key
	})

	return func(yield func(Entry, error) bool) {
		for _, kv := range matches {
			entry := Entry{
				Key:   m.opts.decode([]byte(kv.key)),
				Value: kv.val,
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (m *Memory) DeletePrefix(_ context.Context, prefix Key) error {
	prefixBytes := m.listPrefix(prefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if len(prefixBytes) == 0 || bytes.HasPrefix([]byte(k), prefixBytes) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}

// listPrefix encodes a prefix key for scanning, with a trailing separator
// so "a:b" does not match "a:bc". An empty prefix scans everything.
func (m *Memory) listPrefix(prefix Key) []byte {
	p := m.opts.encode(prefix)
	if len(p) == 0 {
		return nil
	}
	return append(p, m.opts.sep())
}
