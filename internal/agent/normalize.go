package agent

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/easeaico/storefront-cs/internal/prompt"
	"github.com/easeaico/storefront-cs/internal/utils"
)

const (
	maxReplyRunes = 32
	replySuffix   = "🌹"
)

var trailingClock = regexp.MustCompile(`\s*\d{1,2}:\d{2}\S*$`)

// normalizeLLMReply turns raw model text into a short in-chat line ending
// with a single rose.
func normalizeLLMReply(replies *prompt.Replies, text string) string {
	value := strings.TrimSpace(text)
	value = trailingClock.ReplaceAllString(value, "")
	value = utils.CollapseSpaces(value)
	if value == "" {
		return replies.Render(prompt.KeyGeneralEmpty, nil)
	}
	if containsAny(value, complianceKeywords) {
		return replies.Render(prompt.KeyContactCompliance, nil)
	}
	if containsAny(value, shippingKeywords) {
		return replies.Render(prompt.KeyShippingNotice, nil)
	}

	value = stripDecorations(value)
	value = truncateClause(value, maxReplyRunes)
	if value == "" {
		return replies.Render(prompt.KeyGeneralEmpty, nil)
	}
	if !strings.HasSuffix(value, "！") && !strings.HasSuffix(value, "？") && !strings.HasSuffix(value, "。") {
		value += "。"
	}
	return value + replySuffix
}

// stripDecorations removes emoji, tildes and joiners.
func stripDecorations(text string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r == '～' || r == '~' || r == '\u200d' || r == '\ufe0f':
			return -1
		case unicode.Is(unicode.So, r) || unicode.Is(unicode.Sk, r):
			return -1
		case r >= 0x1f000 && r <= 0x1faff:
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(utils.CollapseSpaces(out))
}

func isClauseBoundary(r rune) bool {
	switch r {
	case '，', '。', '！', '？', '；', '、', ',', '.', '!', '?', ';':
		return true
	}
	return false
}

func isSentenceEnd(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

// truncateClause keeps at most limit runes, cutting at the last clause
// boundary when one exists. Sentence-final punctuation is kept, other
// trailing separators are dropped.
func truncateClause(text string, limit int) string {
	runes := []rune(text)
	if len(runes) > limit {
		cut := runes[:limit]
		end := -1
		for i := len(cut) - 1; i > 0; i-- {
			if isClauseBoundary(cut[i]) {
				end = i
				break
			}
		}
		switch {
		case end < 0:
			runes = cut
		case isSentenceEnd(cut[end]):
			runes = cut[:end+1]
		default:
			runes = cut[:end]
		}
	}
	for len(runes) > 0 {
		last := runes[len(runes)-1]
		if !isClauseBoundary(last) || isSentenceEnd(last) {
			break
		}
		runes = runes[:len(runes)-1]
	}
	return strings.TrimSpace(string(runes))
}
