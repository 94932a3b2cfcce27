package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/easeaico/storefront-cs/internal/types"
)

type fakeRepo struct {
	items   map[string]types.KnowledgeItem
	saveErr error
}

func newFakeRepo(items ...types.KnowledgeItem) *fakeRepo {
	r := &fakeRepo{items: map[string]types.KnowledgeItem{}}
	for _, it := range items {
		r.items[it.ID] = it
	}
	return r
}

func (r *fakeRepo) ListItems(ctx context.Context) ([]types.KnowledgeItem, error) {
	out := make([]types.KnowledgeItem, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it)
	}
	return out, nil
}

func (r *fakeRepo) SaveItem(ctx context.Context, it types.KnowledgeItem) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.items[it.ID] = it
	return nil
}

func (r *fakeRepo) DeleteItem(ctx context.Context, id string) error {
	delete(r.items, id)
	return nil
}

func (r *fakeRepo) ClearItems(ctx context.Context) error {
	r.items = map[string]types.KnowledgeItem{}
	return nil
}

func TestBaseLoadBackfillsLegacyAnswer(t *testing.T) {
	repo := newFakeRepo(types.KnowledgeItem{ID: "1", Question: "会掉吗", Answer: "不会掉，佩戴很稳。", Intent: "wearing"})
	base := NewBase(repo)
	if err := base.Load(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	d, ok := base.FindBestMatchDetail("会掉吗", 0.6)
	if !ok {
		t.Fatalf("expected match")
	}
	if len(d.Item.Answers) != 1 || d.Item.Answers[0] != "不会掉，佩戴很稳。" {
		t.Fatalf("expected backfilled answers, got %v", d.Item.Answers)
	}
}

func TestBaseAddAssignsIDAndPersists(t *testing.T) {
	repo := newFakeRepo()
	base := NewBase(repo)
	it, err := base.Add(context.Background(), types.KnowledgeItem{
		Question: "好的谢谢",
		Answer:   "不客气姐姐🌹",
		Tags:     []string{"礼貌", "结束语"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if it.ID == "" {
		t.Fatalf("expected generated id")
	}
	if _, ok := repo.items[it.ID]; !ok {
		t.Fatalf("expected item to be persisted")
	}
	d, ok := base.FindBestMatchDetail("好的谢谢", 0.6)
	if !ok || d.Item.ID != it.ID || !d.Item.HasTag("礼貌") {
		t.Fatalf("unexpected match detail: %+v", d)
	}
}

func TestBaseAddRejectsEmpty(t *testing.T) {
	base := NewBase(newFakeRepo())
	if _, err := base.Add(context.Background(), types.KnowledgeItem{Question: "q"}); err == nil {
		t.Fatalf("expected error for missing answer")
	}
}

func TestBaseAddDoesNotCacheOnRepoError(t *testing.T) {
	repo := newFakeRepo()
	repo.saveErr = errors.New("disk full")
	base := NewBase(repo)
	if _, err := base.Add(context.Background(), types.KnowledgeItem{Question: "q", Answer: "a"}); err == nil {
		t.Fatalf("expected error")
	}
	if base.Count() != 0 {
		t.Fatalf("expected empty cache, got %d", base.Count())
	}
}

func TestBaseUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	base := NewBase(newFakeRepo())
	it, err := base.Add(ctx, types.KnowledgeItem{Question: "价格", Answer: "看款式"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	updated, err := base.Update(ctx, it.ID, Patch{Answers: []string{"看发质", "看工艺"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Answer != "看发质" || len(updated.Answers) != 2 {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if _, err := base.Update(ctx, "missing", Patch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := base.Delete(ctx, it.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if base.Count() != 0 {
		t.Fatalf("expected empty base after delete")
	}
	if err := base.Delete(ctx, it.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBaseSearchWeightsQuestionHits(t *testing.T) {
	ctx := context.Background()
	base := NewBase(newFakeRepo())
	_, _ = base.Add(ctx, types.KnowledgeItem{Question: "透气吗", Answer: "很透气"})
	_, _ = base.Add(ctx, types.KnowledgeItem{Question: "夏天热吗", Answer: "透气网底不闷"})

	got := base.Search("透气")
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Question != "透气吗" {
		t.Fatalf("expected question hit first, got %s", got[0].Question)
	}
	if again := base.Search("透气"); len(again) != 2 {
		t.Fatalf("expected cached results, got %d", len(again))
	}
}

func TestBaseImportFormats(t *testing.T) {
	base := NewBase(newFakeRepo())
	data := `[
		{"question":"透气吗","answer":"透气","tags":["佩戴体验"]},
		{"q":"多少钱","a":"看款式"},
		["会掉吗","不会"],
		{"question":"缺答案"},
		["单个"]
	]`
	ok, failed, err := base.Import(context.Background(), []byte(data))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ok != 3 || failed != 2 {
		t.Fatalf("expected 3 ok and 2 failed, got %d/%d", ok, failed)
	}
	if _, _, err := base.Import(context.Background(), []byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestBaseExportRoundTripsCount(t *testing.T) {
	ctx := context.Background()
	base := NewBase(newFakeRepo())
	_, _ = base.Add(ctx, types.KnowledgeItem{Question: "透气吗", Answer: "透气"})
	data, err := base.Export()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var items []types.KnowledgeItem
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("expected valid json, got %v", err)
	}
	if len(items) != 1 || items[0].Question != "透气吗" {
		t.Fatalf("unexpected export: %+v", items)
	}
}

func TestTopExamples(t *testing.T) {
	ctx := context.Background()
	base := NewBase(newFakeRepo())
	_, _ = base.Add(ctx, types.KnowledgeItem{Question: "透气吗", Answer: "透气"})
	_, _ = base.Add(ctx, types.KnowledgeItem{Question: "价格多少", Answer: "看款式"})
	_, _ = base.Add(ctx, types.KnowledgeItem{Question: "营业时间", Answer: "十点到九点"})

	got := base.TopExamples("透气吗姐姐", 3)
	if len(got) == 0 || got[0].Question != "透气吗" {
		t.Fatalf("expected 透气吗 first, got %+v", got)
	}
	if got := base.TopExamples("", 3); got != nil {
		t.Fatalf("expected nil for empty query")
	}
}
