package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/easeaico/storefront-cs/internal/knowledge"
	"github.com/easeaico/storefront-cs/internal/types"
)

// knowledgeFile stores the knowledge base as a JSON array, preserving
// insertion order.
type knowledgeFile struct {
	path string

	mu    sync.Mutex
	items []types.KnowledgeItem
}

// NewKnowledgeFile returns a knowledge.Repo backed by a JSON file.
func NewKnowledgeFile(path string) knowledge.Repo {
	return &knowledgeFile{path: path}
}

func (f *knowledgeFile) ListItems(ctx context.Context) ([]types.KnowledgeItem, error) {
	items, err := LoadJSONFile[[]types.KnowledgeItem](f.path)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.items = slices.Clone(items)
	f.mu.Unlock()
	return items, nil
}

func (f *knowledgeFile) SaveItem(ctx context.Context, item types.KnowledgeItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := slices.Clone(f.items)
	idx := slices.IndexFunc(next, func(it types.KnowledgeItem) bool { return it.ID == item.ID })
	if idx >= 0 {
		next[idx] = item
	} else {
		next = append(next, item)
	}
	if err := SaveJSONFile(f.path, next); err != nil {
		return err
	}
	f.items = next
	return nil
}

func (f *knowledgeFile) DeleteItem(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := slices.DeleteFunc(slices.Clone(f.items), func(it types.KnowledgeItem) bool { return it.ID == id })
	if len(next) == len(f.items) {
		return knowledge.ErrNotFound
	}
	if err := SaveJSONFile(f.path, next); err != nil {
		return err
	}
	f.items = next
	return nil
}

func (f *knowledgeFile) ClearItems(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := SaveJSONFile(f.path, []types.KnowledgeItem{}); err != nil {
		return err
	}
	f.items = nil
	return nil
}
