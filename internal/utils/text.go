package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeForDedupe lowercases text and keeps only letters, digits,
// underscores and CJK characters.
func NormalizeForDedupe(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	var b strings.Builder
	for _, r := range text {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ReplyHash is the short hash stored in a user's recent reply list.
// Empty text hashes to the empty string.
func ReplyHash(text string) string {
	normalized := NormalizeForDedupe(text)
	if normalized == "" {
		return ""
	}
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// HashUser derives the stable user key from a display name.
func HashUser(name string) string {
	if name == "" {
		name = "unknown"
	}
	sum := md5.Sum([]byte(name))
	return hex.EncodeToString(sum[:])[:10]
}

// CollapseSpaces joins whitespace-separated fields with single spaces.
func CollapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
