// Package knowledge provides the curated Q/A base and its fuzzy matcher.
package knowledge

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/storefront-cs/internal/types"
	"github.com/easeaico/storefront-cs/internal/utils"
)

var (
	// ErrNotFound is returned when an item id does not exist.
	ErrNotFound = errors.New("knowledge item not found")
	// ErrInvalidItem is returned for an item without question or answer.
	ErrInvalidItem = errors.New("question and answer are required")
)

// Repo persists knowledge items.
type Repo interface {
	ListItems(ctx context.Context) ([]types.KnowledgeItem, error)
	SaveItem(ctx context.Context, item types.KnowledgeItem) error
	DeleteItem(ctx context.Context, id string) error
	ClearItems(ctx context.Context) error
}

// Patch holds optional field updates. Nil fields are left unchanged.
type Patch struct {
	Question *string   `json:"question,omitempty"`
	Answer   *string   `json:"answer,omitempty"`
	Answers  []string  `json:"answers,omitempty"`
	Intent   *string   `json:"intent,omitempty"`
	Category *string   `json:"category,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
}

// Example is a question/answer pair used as prompt context.
type Example struct {
	Question string
	Answer   string
}

// Base is an in-memory cache of the knowledge items backed by a Repo.
type Base struct {
	repo    Repo
	nowFunc func() time.Time

	mu          sync.RWMutex
	items       []types.KnowledgeItem
	searchCache map[string][]types.KnowledgeItem
}

// NewBase returns an empty Base. Call Load to populate it.
func NewBase(repo Repo) *Base {
	return &Base{
		repo:        repo,
		nowFunc:     time.Now,
		searchCache: map[string][]types.KnowledgeItem{},
	}
}

// Load replaces the cache with the repo contents.
func (b *Base) Load(ctx context.Context) error {
	items, err := b.repo.ListItems(ctx)
	if err != nil {
		return fmt.Errorf("failed to list knowledge items: %w", err)
	}
	for i := range items {
		items[i].NormalizeAnswers()
	}
	b.mu.Lock()
	b.items = items
	b.searchCache = map[string][]types.KnowledgeItem{}
	b.mu.Unlock()
	slog.Info("knowledge base loaded", "count", len(items))
	return nil
}

// All returns a copy of every item.
func (b *Base) All() []types.KnowledgeItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]types.KnowledgeItem(nil), b.items...)
}

// Count returns the number of items.
func (b *Base) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Get returns the item with id.
func (b *Base) Get(id string) (types.KnowledgeItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, item := range b.items {
		if item.ID == id {
			return item, nil
		}
	}
	return types.KnowledgeItem{}, ErrNotFound
}

// Add stores a new item, assigning id and timestamps.
func (b *Base) Add(ctx context.Context, item types.KnowledgeItem) (types.KnowledgeItem, error) {
	item.Question = strings.TrimSpace(item.Question)
	item.NormalizeAnswers()
	if item.Question == "" || item.Answer == "" {
		return types.KnowledgeItem{}, ErrInvalidItem
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := b.nowFunc()
	item.CreatedAt = now
	item.UpdatedAt = now

	if err := b.repo.SaveItem(ctx, item); err != nil {
		return types.KnowledgeItem{}, fmt.Errorf("failed to save knowledge item: %w", err)
	}
	b.mu.Lock()
	b.items = append(b.items, item)
	b.searchCache = map[string][]types.KnowledgeItem{}
	b.mu.Unlock()
	return item, nil
}

// Update applies patch to the item with id.
func (b *Base) Update(ctx context.Context, id string, patch Patch) (types.KnowledgeItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := -1
	for i, item := range b.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return types.KnowledgeItem{}, ErrNotFound
	}

	item := b.items[idx]
	if patch.Question != nil {
		item.Question = strings.TrimSpace(*patch.Question)
	}
	if patch.Answers != nil {
		item.Answers = patch.Answers
		item.Answer = ""
	} else if patch.Answer != nil {
		item.Answer = *patch.Answer
		item.Answers = nil
	}
	if patch.Intent != nil {
		item.Intent = *patch.Intent
	}
	if patch.Category != nil {
		item.Category = *patch.Category
	}
	if patch.Tags != nil {
		item.Tags = *patch.Tags
	}
	item.NormalizeAnswers()
	item.UpdatedAt = b.nowFunc()

	if err := b.repo.SaveItem(ctx, item); err != nil {
		return types.KnowledgeItem{}, fmt.Errorf("failed to update knowledge item: %w", err)
	}
	next := slices.Clone(b.items)
	next[idx] = item
	b.items = next
	b.searchCache = map[string][]types.KnowledgeItem{}
	return item, nil
}

// Delete removes the item with id.
func (b *Base) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, item := range b.items {
		if item.ID != id {
			continue
		}
		if err := b.repo.DeleteItem(ctx, id); err != nil {
			return fmt.Errorf("failed to delete knowledge item: %w", err)
		}
		b.items = slices.Delete(slices.Clone(b.items), i, i+1)
		b.searchCache = map[string][]types.KnowledgeItem{}
		return nil
	}
	return ErrNotFound
}

// Clear removes every item.
func (b *Base) Clear(ctx context.Context) error {
	if err := b.repo.ClearItems(ctx); err != nil {
		return fmt.Errorf("failed to clear knowledge items: %w", err)
	}
	b.mu.Lock()
	b.items = nil
	b.searchCache = map[string][]types.KnowledgeItem{}
	b.mu.Unlock()
	return nil
}

// Search ranks items by keyword hits: +10 per keyword in the question and
// +5 per keyword in the answer. An empty query returns every item.
func (b *Base) Search(query string) []types.KnowledgeItem {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return b.All()
	}

	b.mu.RLock()
	if cached, ok := b.searchCache[query]; ok {
		b.mu.RUnlock()
		return append([]types.KnowledgeItem(nil), cached...)
	}
	items := b.items
	b.mu.RUnlock()

	keywords := strings.Fields(query)
	var hits []scored
	for _, item := range items {
		score := 0.0
		question := strings.ToLower(item.Question)
		answers := strings.ToLower(strings.Join(item.Answers, "\n"))
		for _, kw := range keywords {
			if strings.Contains(question, kw) {
				score += 10
			}
			if strings.Contains(answers, kw) {
				score += 5
			}
		}
		if score > 0 {
			hits = append(hits, scored{item: item, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	results := make([]types.KnowledgeItem, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.item)
	}
	b.mu.Lock()
	b.searchCache[query] = results
	b.mu.Unlock()
	return append([]types.KnowledgeItem(nil), results...)
}

// FindBestMatchDetail returns the best matching item for query.
func (b *Base) FindBestMatchDetail(query string, threshold float64) (types.MatchDetail, bool) {
	b.mu.RLock()
	items := b.items
	b.mu.RUnlock()
	return BestMatch(items, query, threshold)
}

// FindAnswer returns the first answer of the best match.
func (b *Base) FindAnswer(query string, threshold float64) (string, bool) {
	d, ok := b.FindBestMatchDetail(query, threshold)
	if !ok {
		return "", false
	}
	return d.Item.Answer, true
}

// TopExamples returns up to limit items ranked by character overlap with query.
func (b *Base) TopExamples(query string, limit int) []Example {
	q := utils.NormalizeForDedupe(query)
	if q == "" || limit <= 0 {
		return nil
	}
	b.mu.RLock()
	items := b.items
	b.mu.RUnlock()

	type ranked struct {
		score float64
		ex    Example
	}
	var all []ranked
	for _, item := range items {
		question := strings.TrimSpace(item.Question)
		answer := strings.TrimSpace(item.Answer)
		if question == "" || answer == "" {
			continue
		}
		if s := OverlapScore(q, utils.NormalizeForDedupe(question)); s > 0 {
			all = append(all, ranked{score: s, ex: Example{Question: question, Answer: answer}})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]Example, 0, len(all))
	for _, r := range all {
		out = append(out, r.ex)
	}
	return out
}

// Import adds items from a JSON array. Elements may be objects with
// question/answer (or q/a) keys, or two-element [question, answer] arrays.
func (b *Base) Import(ctx context.Context, data []byte) (int, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, 0, fmt.Errorf("failed to decode knowledge import: %w", err)
	}

	success, failed := 0, 0
	for _, elem := range raw {
		item, ok := decodeImportItem(elem)
		if !ok {
			failed++
			continue
		}
		if _, err := b.Add(ctx, item); err != nil {
			slog.Warn("failed to import knowledge item", "question", item.Question, "error", err.Error())
			failed++
			continue
		}
		success++
	}
	return success, failed, nil
}

type importObject struct {
	Question string   `json:"question"`
	Q        string   `json:"q"`
	Answer   string   `json:"answer"`
	A        string   `json:"a"`
	Answers  []string `json:"answers"`
	Intent   string   `json:"intent"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func decodeImportItem(elem json.RawMessage) (types.KnowledgeItem, bool) {
	var pair []any
	if err := json.Unmarshal(elem, &pair); err == nil {
		if len(pair) < 2 {
			return types.KnowledgeItem{}, false
		}
		return types.KnowledgeItem{
			Question: fmt.Sprint(pair[0]),
			Answer:   fmt.Sprint(pair[1]),
		}, true
	}

	var obj importObject
	if err := json.Unmarshal(elem, &obj); err != nil {
		return types.KnowledgeItem{}, false
	}
	item := types.KnowledgeItem{
		Question: cmp.Or(obj.Question, obj.Q),
		Answer:   cmp.Or(obj.Answer, obj.A),
		Answers:  obj.Answers,
		Intent:   obj.Intent,
		Category: obj.Category,
		Tags:     obj.Tags,
	}
	item.NormalizeAnswers()
	if strings.TrimSpace(item.Question) == "" || item.Answer == "" {
		return types.KnowledgeItem{}, false
	}
	return item, true
}

// Export encodes every item as an indented JSON array.
func (b *Base) Export() ([]byte, error) {
	items := b.All()
	if items == nil {
		items = []types.KnowledgeItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode knowledge export: %w", err)
	}
	return data, nil
}
