package storage

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/easeaico/storefront-cs/internal/memory"
	"github.com/easeaico/storefront-cs/internal/types"
)

const memoryFileVersion = 1

type memoryDocument struct {
	Version   int                           `json:"version"`
	UpdatedAt time.Time                     `json:"updated_at"`
	Sessions  map[string]types.SessionState `json:"sessions"`
	Users     map[string]types.UserState    `json:"users"`
}

// memoryFile keeps the whole memory snapshot in one JSON document and
// rewrites it on every change.
type memoryFile struct {
	path string

	mu  sync.Mutex
	doc memoryDocument
}

// NewMemoryFile returns a memory.Repo backed by a JSON file.
func NewMemoryFile(path string) memory.Repo {
	return &memoryFile{path: path, doc: emptyMemoryDocument()}
}

func emptyMemoryDocument() memoryDocument {
	return memoryDocument{
		Version:  memoryFileVersion,
		Sessions: map[string]types.SessionState{},
		Users:    map[string]types.UserState{},
	}
}

func (f *memoryFile) Load(ctx context.Context) (memory.Snapshot, error) {
	doc, err := LoadJSONFile[memoryDocument](f.path)
	if err != nil {
		return memory.Snapshot{}, err
	}
	if doc.Sessions == nil {
		doc.Sessions = map[string]types.SessionState{}
	}
	if doc.Users == nil {
		doc.Users = map[string]types.UserState{}
	}
	doc.Version = memoryFileVersion

	f.mu.Lock()
	f.doc = doc
	f.mu.Unlock()

	return memory.Snapshot{
		Sessions: maps.Clone(doc.Sessions),
		Users:    maps.Clone(doc.Users),
	}, nil
}

func (f *memoryFile) SaveSession(ctx context.Context, state types.SessionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc.Sessions[state.SessionID] = state.Clone()
	return f.flush()
}

func (f *memoryFile) SaveUser(ctx context.Context, state types.UserState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doc.Users[state.UserHash] = state.Clone()
	return f.flush()
}

func (f *memoryFile) DeleteSessions(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.doc.Sessions, id)
	}
	return f.flush()
}

func (f *memoryFile) DeleteUsers(ctx context.Context, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, hash := range hashes {
		delete(f.doc.Users, hash)
	}
	return f.flush()
}

// flush must be called with f.mu held.
func (f *memoryFile) flush() error {
	f.doc.UpdatedAt = time.Now()
	return SaveJSONFile(f.path, f.doc)
}
