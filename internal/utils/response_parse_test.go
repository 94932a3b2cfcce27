package utils

import (
	"errors"
	"testing"
)

func TestParseReply(t *testing.T) {
	got, err := ParseReply(`{"reply_text":" 姐姐好 ","intent":"general","route_reason":"闲聊","media_plan":"none","reply_goal":"解答"}`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ReplyText != "姐姐好" || got.Intent != "general" || got.ReplyGoal != "解答" || !got.Structured {
		t.Fatalf("unexpected reply: %+v", got)
	}
}

func TestParseReplyWithFenceAndWrapper(t *testing.T) {
	got, err := ParseReply("```json\n好的 {\"reply_text\":\"嗨\"} 以上\n```")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ReplyText != "嗨" || got.MediaPlan != "" {
		t.Fatalf("unexpected reply: %+v", got)
	}
}

func TestParseReplyInvalid(t *testing.T) {
	for _, raw := range []string{
		`姐姐好`,
		`{"reply_text":""}`,
		`{"intent":"general"}`,
		`{"reply_text":"ok","media_plan":"video"}`,
		`{"reply_text":"ok","reply_goal":"闲聊"}`,
		`{"reply_text":"ok"`,
	} {
		if _, err := ParseReply(raw); !errors.Is(err, ErrInvalidReply) {
			t.Fatalf("%s: expected ErrInvalidReply, got %v", raw, err)
		}
	}
}

func TestReplyFromRawFallsBackToText(t *testing.T) {
	got := ReplyFromRaw("  姐姐这款很透气的  ")
	if got.Structured || got.ReplyText != "姐姐这款很透气的" {
		t.Fatalf("unexpected fallback: %+v", got)
	}
	got = ReplyFromRaw(`{"reply_text":"结构化"}`)
	if !got.Structured || got.ReplyText != "结构化" {
		t.Fatalf("unexpected parse: %+v", got)
	}
}

func TestReplyHashIgnoresPunctuation(t *testing.T) {
	if ReplyHash("姐姐，好的！") != ReplyHash("姐姐好的") {
		t.Fatalf("expected equal hashes")
	}
	if ReplyHash("  ，。") != "" {
		t.Fatalf("expected empty hash for punctuation only")
	}
	if HashUser("") != HashUser("unknown") || len(HashUser("张三")) != 10 {
		t.Fatalf("unexpected user hash")
	}
}
