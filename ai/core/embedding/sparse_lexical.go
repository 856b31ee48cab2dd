package embedding

import (
	"context"
	"strings"
	"unicode"
)

// lexicalEncoder is the degraded sparse path: a TF-style bag of words with
// stop-word damping and a curated boost for people-search vocabulary.
// Weights are max-normalized into [0, 1]. Quality is below a learned sparse
// model but it keeps the hybrid pipeline alive without one.
type lexicalEncoder struct {
	stopwords map[string]struct{}
	domain    map[string]struct{}
}

const (
	stopwordDamp = 0.3
	domainBoost  = 2.0
)

var stopwordList = []string{
	// English
	"a", "an", "the", "and", "or", "but", "of", "to", "in", "on", "at",
	"for", "with", "is", "are", "was", "were", "be", "been", "who", "that",
	"this", "it", "as", "by", "from", "i", "me", "my", "we", "you", "he",
	"she", "they", "them", "someone", "looking", "find", "want", "like",
	// Chinese function words (segmented queries)
	"的", "了", "是", "我", "你", "他", "她", "在", "有", "和", "就",
	"想", "找", "一个", "什么", "怎么",
}

// Vocabulary that should dominate a people-search query even at low term
// frequency: skills, roles, technologies, schools and industries.
var domainVocabulary = []string{
	"engineer", "developer", "designer", "founder", "cofounder", "manager",
	"researcher", "scientist", "student", "professor", "analyst", "architect",
	"golang", "go", "python", "java", "rust", "typescript", "javascript",
	"react", "vue", "kubernetes", "docker", "backend", "frontend", "fullstack",
	"ml", "ai", "nlp", "llm", "blockchain", "fintech", "saas", "startup",
	"photography", "music", "guitar", "piano", "hiking", "climbing", "tennis",
	"basketball", "soccer", "yoga", "chess", "cooking",
	"工程师", "设计师", "创始人", "产品", "算法", "后端", "前端", "留学",
	"摄影", "音乐", "吉他", "钢琴", "徒步", "攀岩", "网球", "篮球", "瑜伽",
}

func newLexicalEncoder() *lexicalEncoder {
	e := &lexicalEncoder{
		stopwords: make(map[string]struct{}, len(stopwordList)),
		domain:    make(map[string]struct{}, len(domainVocabulary)),
	}
	for _, w := range stopwordList {
		e.stopwords[w] = struct{}{}
	}
	for _, w := range domainVocabulary {
		e.domain[w] = struct{}{}
	}
	return e
}

func (e *lexicalEncoder) Encode(_ context.Context, text string) (map[string]float32, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return map[string]float32{}, nil
	}

	weights := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		w := 1.0
		if _, ok := e.stopwords[tok]; ok {
			w = stopwordDamp
		} else if _, ok := e.domain[tok]; ok {
			w = domainBoost
		}
		weights[tok] += w
	}

	var max float64
	for _, w := range weights {
		if w > max {
			max = w
		}
	}

	out := make(map[string]float32, len(weights))
	for tok, w := range weights {
		out[tok] = float32(w / max)
	}
	return out, nil
}

// tokenize lowercases and splits on non-letter, non-digit runes. CJK text
// carries little whitespace, so each CJK rune additionally emits a bigram
// with its successor.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	runes := []rune(text)

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for i, r := range runes {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
			if i+1 < len(runes) && unicode.Is(unicode.Han, runes[i+1]) {
				tokens = append(tokens, string(r)+string(runes[i+1]))
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
