package knowledge

import (
	"testing"

	"github.com/easeaico/storefront-cs/internal/types"
)

func item(question, answer, intent string, tags ...string) types.KnowledgeItem {
	it := types.KnowledgeItem{ID: question, Question: question, Answer: answer, Intent: intent, Tags: tags}
	it.NormalizeAnswers()
	return it
}

func TestNormalizeStripsFillerAndPunctuation(t *testing.T) {
	if got := Normalize("姐姐，请问 透气吗？"); got != "透气吗" {
		t.Fatalf("expected 透气吗, got %q", got)
	}
	if got := NormalizeAggressive("你们这个透气吗？"); got != "透气" {
		t.Fatalf("expected 透气, got %q", got)
	}
}

func TestScoreOrdering(t *testing.T) {
	if s := Score("透气吗", "透气吗"); s != 1 {
		t.Fatalf("expected exact score 1, got %v", s)
	}
	s := Score("可以邮寄吗", "不同价格有什么区别可以邮寄吗")
	if s < 0.8 || s > 0.9 {
		t.Fatalf("expected containment score in [0.8,0.9], got %v", s)
	}
	if s := Score("营业时间", "透气吗"); s != 0 {
		t.Fatalf("expected zero score for disjoint text, got %v", s)
	}
}

func TestBestMatchSplitsQuestionVariants(t *testing.T) {
	items := []types.KnowledgeItem{
		item("会掉吗头发？会掉吗？", "非常牢固", "wearing"),
		item("价格是多少", "看发质", "price"),
	}
	d, ok := BestMatch(items, "会掉吗？", 0.6)
	if !ok {
		t.Fatalf("expected a match")
	}
	if d.Item.Answer != "非常牢固" || d.Score != 1 || d.Stage != StageStrict {
		t.Fatalf("unexpected match: %+v", d)
	}
}

func TestBestMatchRelaxedPass(t *testing.T) {
	items := []types.KnowledgeItem{item("透气性好吗", "透气很好", "wearing")}
	d, ok := BestMatch(items, "你们这个透气性好不好呀", 0.6)
	if !ok {
		t.Fatalf("expected relaxed match")
	}
	if d.Stage == StageIntentFallback {
		t.Fatalf("expected strict or relaxed stage, got %s", d.Stage)
	}
}

func TestBestMatchIntentFallback(t *testing.T) {
	items := []types.KnowledgeItem{item("好的谢谢", "不客气姐姐🌹", "general", "礼貌")}
	d, ok := BestMatch(items, "好的，但是我还想再了解一下", 0.6)
	if !ok {
		t.Fatalf("expected intent fallback match")
	}
	if d.Stage != StageIntentFallback {
		t.Fatalf("expected intent_fallback stage, got %s", d.Stage)
	}
}

func TestBestMatchMiss(t *testing.T) {
	items := []types.KnowledgeItem{item("透气吗", "透气", "wearing")}
	if _, ok := BestMatch(items, "你们营业到几点", 0.6); ok {
		t.Fatalf("expected no match")
	}
	if _, ok := BestMatch(nil, "透气吗", 0.6); ok {
		t.Fatalf("expected no match on empty base")
	}
}

func TestIntentFamily(t *testing.T) {
	cases := map[string]string{
		"多少钱一顶":  FamilyPrice,
		"门店在哪":   FamilyAddress,
		"戴着闷不闷":  FamilyWearing,
		"你们几点下班": FamilyGeneral,
	}
	for text, want := range cases {
		if got := IntentFamily(text); got != want {
			t.Fatalf("%s: expected %s, got %s", text, want, got)
		}
	}
}

func TestMatchesExactly(t *testing.T) {
	it := item("谢谢？好的/再见", "不客气", "", "礼貌")
	if !MatchesExactly(it, "再见！") {
		t.Fatalf("expected variant to match exactly")
	}
	if !MatchesExactly(it, "姐姐谢谢") {
		t.Fatalf("expected filler prefix to be ignored")
	}
	if MatchesExactly(it, "谢谢，门店在哪") {
		t.Fatalf("expected mixed query not to match exactly")
	}
}
