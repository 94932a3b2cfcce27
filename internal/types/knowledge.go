package types

import "time"

// KnowledgeItem is one curated question/answer record.
type KnowledgeItem struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Answers   []string  `json:"answers"`
	Intent    string    `json:"intent"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeAnswers keeps Answer and Answers consistent: a legacy Answer
// backfills Answers, and Answer always mirrors the first variant.
func (k *KnowledgeItem) NormalizeAnswers() {
	cleaned := make([]string, 0, len(k.Answers))
	for _, a := range k.Answers {
		if a != "" {
			cleaned = append(cleaned, a)
		}
	}
	if len(cleaned) == 0 && k.Answer != "" {
		cleaned = append(cleaned, k.Answer)
	}
	k.Answers = cleaned
	if len(cleaned) > 0 {
		k.Answer = cleaned[0]
	}
	if k.Tags == nil {
		k.Tags = []string{}
	}
}

// HasTag reports whether the item carries tag.
func (k KnowledgeItem) HasTag(tag string) bool {
	for _, t := range k.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MatchDetail describes the best knowledge candidate for a query.
type MatchDetail struct {
	Item  KnowledgeItem `json:"item"`
	Score float64       `json:"score"`
	// Stage is exact, relaxed or intent_fallback.
	Stage string `json:"stage"`
}
