package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/easeaico/storefront-cs/internal/prompt"
	"github.com/easeaico/storefront-cs/internal/types"
	"github.com/easeaico/storefront-cs/internal/utils"
)

func TestNormalizeLLMReply(t *testing.T) {
	replies := prompt.NewReplies("")
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"adds period and rose", "姐姐这款很透气的", "姐姐这款很透气的。🌹"},
		{"keeps question mark", "姐姐您平时戴多久呀？", "姐姐您平时戴多久呀？🌹"},
		{"strips emoji and tilde", "姐姐放心～😊很自然的", "姐姐放心很自然的。🌹"},
		{"strips trailing clock", "姐姐在的 10:32", "姐姐在的。🌹"},
		{"compliance", "您加我微信聊吧", replies.Render(prompt.KeyContactCompliance, nil)},
		{"shipping", "我们可以快递给您", replies.Render(prompt.KeyShippingNotice, nil)},
		{"empty", "   ", replies.Render(prompt.KeyGeneralEmpty, nil)},
	}
	for _, tc := range cases {
		if got := normalizeLLMReply(replies, tc.in); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestNormalizeLLMReplyTruncatesAtClause(t *testing.T) {
	replies := prompt.NewReplies("")
	long := "姐姐我们的假发都是真人发定制的，佩戴起来非常轻薄透气，夏天也不会觉得闷热，而且可以自己打理"
	got := normalizeLLMReply(replies, long)
	if !strings.HasSuffix(got, "。"+replySuffix) {
		t.Fatalf("expected sentence end, got %q", got)
	}
	body := strings.TrimSuffix(got, replySuffix)
	if n := utf8.RuneCountInString(body); n > maxReplyRunes+1 {
		t.Fatalf("expected at most %d runes, got %d (%q)", maxReplyRunes+1, n, got)
	}
	if strings.Contains(body, "，。") {
		t.Fatalf("expected dangling comma removed, got %q", got)
	}
}

func TestDetectIntent(t *testing.T) {
	cases := map[string]types.Intent{
		"你们门店在哪":   types.IntentAddress,
		"门店在哪我想买":  types.IntentAddress,
		"怎么预约":     types.IntentPurchase,
		"想要预约，加微信": types.IntentPurchase,
		"怎么联系你们":   types.IntentContact,
		"透气吗":      types.IntentGeneral,
	}
	for text, want := range cases {
		if got := detectIntent(text); got != want {
			t.Fatalf("%s: expected %s, got %s", text, want, got)
		}
	}
}

func TestRegionFromText(t *testing.T) {
	if got := regionFromText("齐齐哈尔市"); got != "齐齐哈尔市" {
		t.Fatalf("unexpected region %q", got)
	}
	if got := regionFromText("透气吗"); got != "" {
		t.Fatalf("expected no region, got %q", got)
	}
}

func TestSelfLocation(t *testing.T) {
	for _, text := range []string{"我在成都", "我现在不在上海", "住在广州", "人在深圳"} {
		if !hasSelfLocation(text) {
			t.Fatalf("%s: expected self location", text)
		}
	}
	if hasSelfLocation("成都可以做吗") {
		t.Fatalf("expected no self location")
	}
}

func TestPickVariant(t *testing.T) {
	var user types.UserState
	answers := []string{"甲", "乙"}
	if i, ok := pickVariant(answers, user); !ok || i != 0 {
		t.Fatalf("expected first variant, got %d %v", i, ok)
	}
	user.PushReplyHash(utils.ReplyHash("甲"))
	if i, ok := pickVariant(answers, user); !ok || i != 1 {
		t.Fatalf("expected second variant, got %d %v", i, ok)
	}
	user.PushReplyHash(utils.ReplyHash("乙"))
	if _, ok := pickVariant(answers, user); ok {
		t.Fatalf("expected no fresh variant")
	}
}

func TestPickContinuationWithExhaustedPool(t *testing.T) {
	pool := []string{"甲", "乙", "丙"}
	var user types.UserState
	for _, line := range pool {
		user.PushReplyHash(utils.ReplyHash(line))
	}

	for i := 0; i < 50; i++ {
		if got := pickContinuation(pool, user, "丙"); got != "甲" {
			t.Fatalf("expected least recently used line, got %q", got)
		}
		if got := pickContinuation(pool, user, "甲"); got != "乙" {
			t.Fatalf("expected oldest line other than the avoided one, got %q", got)
		}
	}
	if got := pickContinuation([]string{"丙"}, user); got != "" {
		t.Fatalf("expected no line when only the newest reply remains, got %q", got)
	}
	if got := pickContinuation([]string{"甲", "丁"}, user, "丙"); got != "丁" {
		t.Fatalf("expected the unseen line, got %q", got)
	}
}
