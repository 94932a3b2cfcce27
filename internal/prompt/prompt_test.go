package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/easeaico/storefront-cs/internal/knowledge"
	"github.com/easeaico/storefront-cs/internal/types"
)

func TestBuildIncludesSectionsAndContext(t *testing.T) {
	b := NewBuilder(2)
	p, err := b.Build(BuildContext{
		Docs:     Docs{SystemPrompt: "品牌人设", Playbook: "话术手册"},
		Examples: []knowledge.Example{{Question: "透气吗", Answer: "很透气"}},
		History: []types.ChatMessage{
			{Role: types.RoleUser, Content: "最早的一句"},
			{Role: types.RoleUser, Content: "你好"},
			{Role: types.RoleAssistant, Content: "姐姐好"},
		},
		UserMessage: " 多少钱 ",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{"【品牌系统提示词参考】\n品牌人设", "【客服话术参考】\n话术手册", "- 问：透气吗\n  答：很透气", "reply_text"} {
		if !strings.Contains(p.System, want) {
			t.Fatalf("expected system prompt to contain %q, got %s", want, p.System)
		}
	}
	for _, want := range []string{"【对话上下文】", "1. 用户: 你好", "2. 客服: 姐姐好", "用户(当前): 多少钱"} {
		if !strings.Contains(p.User, want) {
			t.Fatalf("expected conversation block to contain %q, got %s", want, p.User)
		}
	}
	if strings.Contains(p.User, "最早的一句") {
		t.Fatalf("expected history to be limited, got %s", p.User)
	}
	if strings.Contains(p.User, "【改写要求】") {
		t.Fatalf("expected no rewrite section")
	}

	p, err = b.Build(BuildContext{UserMessage: "好", RewriteOf: "姐姐我在呢"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(p.User, "【改写要求】") || !strings.Contains(p.User, "姐姐我在呢") {
		t.Fatalf("expected rewrite section, got %s", p.User)
	}
}

func TestRepliesRenderDefaults(t *testing.T) {
	r := NewReplies("")
	got := r.Render(KeyStoreRecommend, map[string]string{"store_name": "北京朝阳门店"})
	if !strings.Contains(got, "推荐您去北京朝阳门店") {
		t.Fatalf("expected store name, got %s", got)
	}
	got = r.Render(KeyNonCoverageContact, nil)
	if !strings.HasPrefix(got, "姐姐，暂时没有") {
		t.Fatalf("expected missing placeholder to render empty, got %s", got)
	}
	if got := r.Render("no_such_key", nil); got != r.Render(KeyGeneralEmpty, nil) {
		t.Fatalf("expected general_empty for unknown key, got %s", got)
	}
	if len(r.RepeatPool()) != 3 {
		t.Fatalf("expected default repeat pool")
	}
}

func TestRepliesReloadOverrides(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "reply_templates.json")
	if err := os.WriteFile(jsonPath, []byte(`{"contact_intro":"  自定义   联系  ","repeat_pool":["甲","  ",""],"llm_fallback":""}`), 0o644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	r := NewReplies(jsonPath)
	if err := r.Reload(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !r.Loaded() {
		t.Fatalf("expected overrides loaded")
	}
	if got := r.Render(KeyContactIntro, nil); got != "自定义 联系" {
		t.Fatalf("expected collapsed override, got %q", got)
	}
	if got := r.Render(KeyLLMFallback, nil); !strings.Contains(got, "系统现在有点忙") {
		t.Fatalf("expected blank override to keep default, got %s", got)
	}
	if pool := r.RepeatPool(); len(pool) != 1 || pool[0] != "甲" {
		t.Fatalf("expected overridden pool, got %v", pool)
	}

	yamlPath := filepath.Join(dir, "reply_templates.yaml")
	if err := os.WriteFile(yamlPath, []byte("shipping_notice: 到店定制\nrepeat_pool:\n  - 乙\n  - 丙\n"), 0o644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	r = NewReplies(yamlPath)
	if err := r.Reload(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := r.Render(KeyShippingNotice, nil); got != "到店定制" {
		t.Fatalf("expected yaml override, got %s", got)
	}
	if len(r.RepeatPool()) != 2 {
		t.Fatalf("expected yaml pool")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`[1,2`), 0o644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	r = NewReplies(bad)
	if err := r.Reload(); err == nil {
		t.Fatalf("expected decode error")
	}
	if r.Loaded() || !strings.Contains(r.Render(KeyContactIntro, nil), "联系方式图") {
		t.Fatalf("expected defaults after failed reload")
	}
}

func TestLoadDocsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	sys := filepath.Join(dir, "system_prompt.md")
	if err := os.WriteFile(sys, []byte("\n 人设 \n"), 0o644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	docs := LoadDocs(sys, filepath.Join(dir, "missing.md"))
	if docs.SystemPrompt != "人设" || !docs.SystemPromptLoaded() || docs.PlaybookLoaded() {
		t.Fatalf("unexpected docs: %+v", docs)
	}
}
