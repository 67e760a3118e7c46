package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
)

type memEntry struct {
	content []byte
	version string
}

// Memory — хранилище в памяти с той же версионной дисциплиной,
// что и удалённый бекенд. Используется в dev-режиме и в тестах.
type Memory struct {
	mu    sync.Mutex
	blobs map[string]memEntry
	seq   int64
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]memEntry)}
}

func (m *Memory) Get(_ context.Context, path string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.blobs[path]
	if !ok {
		return nil, "", ErrNotFound
	}
	cp := make([]byte, len(e.content))
	copy(cp, e.content)
	return cp, e.version, nil
}

func (m *Memory) Put(_ context.Context, path string, content []byte, version string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.blobs[path]
	if version == "" {
		if ok {
			return "", ErrVersionConflict
		}
	} else if !ok || e.version != version {
		return "", ErrVersionConflict
	}

	m.seq++
	next := "v" + strconv.FormatInt(m.seq, 10)
	cp := make([]byte, len(content))
	copy(cp, content)
	m.blobs[path] = memEntry{content: cp, version: next}
	return next, nil
}

func (m *Memory) Delete(_ context.Context, path string, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.blobs[path]
	if !ok {
		return nil // идемпотентное удаление
	}
	if e.version != version {
		return ErrVersionConflict
	}
	delete(m.blobs, path)
	return nil
}

func (m *Memory) List(_ context.Context, dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.TrimSuffix(dir, "/") + "/"
	var names []string
	for path := range m.blobs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" || strings.Contains(rest, "/") {
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)
	return names, nil
}
