package knowledge

import (
	"strings"
	"unicode"

	"github.com/easeaico/storefront-cs/internal/types"
)

// Match stages.
const (
	StageStrict         = "strict"
	StageRelaxed        = "relaxed"
	StageIntentFallback = "intent_fallback"
)

const (
	// DefaultThreshold is the strict match threshold.
	DefaultThreshold = 0.6
	minRelaxed       = 0.35
	intentFloor      = 0.1
)

var fillerPrefixes = []string{
	"姐姐", "请问一下", "请问", "你好", "您好", "我想问一下", "我想问", "想问下", "想问一下", "那个", "就是",
}

var particles = []rune{'吗', '呢', '啊', '呀', '吧', '嘛', '哦', '哈', '么', '的', '了'}

var stopwords = []string{"你们", "我们", "这个", "那个", "一下", "可以", "是不是", "有没有"}

// Normalize lowercases text, drops punctuation and whitespace, and strips
// leading filler words such as 姐姐 or 请问.
func Normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	for changed := true; changed; {
		changed = false
		for _, p := range fillerPrefixes {
			if strings.HasPrefix(out, p) && len(out) > len(p) {
				out = strings.TrimPrefix(out, p)
				changed = true
			}
		}
	}
	return out
}

// NormalizeAggressive applies Normalize and also removes modal particles and stopwords.
func NormalizeAggressive(text string) string {
	out := Normalize(text)
	for _, w := range stopwords {
		out = strings.ReplaceAll(out, w, "")
	}
	return strings.Map(func(r rune) rune {
		for _, p := range particles {
			if r == p {
				return -1
			}
		}
		return r
	}, out)
}

// Score compares two normalized strings. Exact equality scores 1.0,
// containment 0.8 to 0.9 by length ratio, otherwise the larger of the
// bigram Jaccard and a discounted character Jaccard.
func Score(query, question string) float64 {
	if query == "" || question == "" {
		return 0
	}
	if query == question {
		return 1
	}
	if strings.Contains(question, query) || strings.Contains(query, question) {
		qa, qb := len([]rune(query)), len([]rune(question))
		shorter, longer := min(qa, qb), max(qa, qb)
		return 0.8 + 0.1*float64(shorter)/float64(longer)
	}
	tokenScore := jaccard(tokens(query), tokens(question))
	charScore := 0.8 * jaccard(chars(query), chars(question))
	return max(tokenScore, charScore)
}

// questionVariants splits a stored question on question marks and separators.
func questionVariants(question string) []string {
	parts := strings.FieldsFunc(question, func(r rune) bool {
		switch r {
		case '？', '?', '\n', '/', '|', '；', ';':
			return true
		}
		return false
	})
	if len(parts) == 0 {
		return []string{question}
	}
	return parts
}

// MatchesExactly reports whether query equals the item's question or one of
// its variants after normalization.
func MatchesExactly(item types.KnowledgeItem, query string) bool {
	q := Normalize(query)
	if q == "" {
		return false
	}
	for _, variant := range questionVariants(item.Question) {
		if Normalize(variant) == q {
			return true
		}
	}
	return false
}

type scored struct {
	item  types.KnowledgeItem
	score float64
}

func bestOf(items []types.KnowledgeItem, query string, normalize func(string) string, keep func(types.KnowledgeItem) bool) (scored, bool) {
	var best scored
	found := false
	for _, item := range items {
		if keep != nil && !keep(item) {
			continue
		}
		if len(item.Answers) == 0 && item.Answer == "" {
			continue
		}
		for _, variant := range questionVariants(item.Question) {
			s := Score(query, normalize(variant))
			if !found || s > best.score {
				best = scored{item: item, score: s}
				found = true
			}
		}
	}
	return best, found
}

// BestMatch returns the best candidate above threshold. It tries a strict
// pass, then an aggressively normalized pass at a relaxed threshold, then
// a same-intent-family pass above a low floor.
func BestMatch(items []types.KnowledgeItem, query string, threshold float64) (types.MatchDetail, bool) {
	if len(items) == 0 {
		return types.MatchDetail{}, false
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	strict := Normalize(query)
	if strict == "" {
		return types.MatchDetail{}, false
	}
	if best, ok := bestOf(items, strict, Normalize, nil); ok && best.score >= threshold {
		return detail(best, StageStrict), true
	}

	relaxedThreshold := max(minRelaxed, min(threshold, threshold*0.75))
	if aggressive := NormalizeAggressive(query); aggressive != "" {
		if best, ok := bestOf(items, aggressive, NormalizeAggressive, nil); ok && best.score >= relaxedThreshold {
			return detail(best, StageRelaxed), true
		}
	}

	family := IntentFamily(query)
	sameFamily := func(item types.KnowledgeItem) bool {
		if item.Intent != "" {
			return item.Intent == family
		}
		return IntentFamily(item.Question) == family
	}
	if best, ok := bestOf(items, strict, Normalize, sameFamily); ok && best.score >= intentFloor {
		return detail(best, StageIntentFallback), true
	}
	return types.MatchDetail{}, false
}

func detail(s scored, stage string) types.MatchDetail {
	return types.MatchDetail{Item: s.item, Score: s.score, Stage: stage}
}

// Intent families used by the fallback pass.
const (
	FamilyPrice   = "price"
	FamilyAddress = "address"
	FamilyWearing = "wearing"
	FamilyGeneral = "general"
)

var familyKeywords = []struct {
	family   string
	keywords []string
}{
	{FamilyPrice, []string{"价格", "多少钱", "价位", "费用", "贵", "便宜", "优惠", "报价"}},
	{FamilyAddress, []string{"地址", "在哪", "门店", "位置", "怎么走", "怎么去", "实体店"}},
	{FamilyWearing, []string{"佩戴", "戴", "透气", "掉", "闷", "舒服", "自然", "固定", "热"}},
}

// IntentFamily classifies text into price, address, wearing or general.
func IntentFamily(text string) string {
	for _, f := range familyKeywords {
		for _, kw := range f.keywords {
			if strings.Contains(text, kw) {
				return f.family
			}
		}
	}
	return FamilyGeneral
}

// OverlapScore is the cheap similarity used to rank prompt examples.
func OverlapScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.9
	}
	return jaccard(chars(a), chars(b))
}

func tokens(s string) map[string]struct{} {
	out := map[string]struct{}{}
	var ascii strings.Builder
	var prev rune
	flush := func() {
		if ascii.Len() > 0 {
			out[ascii.String()] = struct{}{}
			ascii.Reset()
		}
	}
	for _, r := range s {
		if r < unicode.MaxASCII {
			ascii.WriteRune(r)
			prev = 0
			continue
		}
		flush()
		if prev != 0 {
			out[string([]rune{prev, r})] = struct{}{}
		}
		prev = r
	}
	flush()
	if len(out) == 0 && prev != 0 {
		out[string(prev)] = struct{}{}
	}
	return out
}

func chars(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, r := range s {
		out[string(r)] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
