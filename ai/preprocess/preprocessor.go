// Package preprocess rewrites a raw utterance into retrieval-friendly
// dense and sparse query texts.
package preprocess

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/luoshen/linkmate/ai/core/llm"
	"github.com/luoshen/linkmate/ai/internal/strutil"
)

// Queries carries the two rewritten query forms used by hybrid retrieval.
type Queries struct {
	// Dense is a fluent semantic description for the dense embedding.
	Dense string `json:"dense_query"`
	// Sparse is a compact keyword string for the sparse embedding.
	Sparse string `json:"sparse_query"`
}

// Preprocessor rewrites user utterances with two parallel LLM calls.
type Preprocessor struct {
	llm llm.Service
}

// New creates a preprocessor on top of the shared LLM service.
func New(llmService llm.Service) *Preprocessor {
	return &Preprocessor{llm: llmService}
}

const denseRewritePrompt = `你是人脉搜索的查询改写器。把用户的找人需求改写成一段完整、具体的描述,
用于语义向量检索。保留所有硬性条件 (技能、城市、行业、兴趣), 补全明显省略的语境, 不要加入用户没说的条件。
只输出改写后的描述文本, 不要解释。`

const sparseRewritePrompt = `你是人脉搜索的关键词抽取器。从用户的找人需求中抽取检索关键词:
技能、职位、公司、学校、城市、兴趣爱好。英文关键词保留英文。
只输出关键词, 用空格分隔, 不要解释, 不要标点。`

const (
	rewriteTimeout   = 15 * time.Second
	rewriteMaxTokens = 150
)

// Rewrite produces both query forms. The two LLM calls run concurrently and
// degrade independently: a failed rewrite falls back to the original
// utterance, so retrieval always has something to work with.
func (p *Preprocessor) Rewrite(ctx context.Context, utterance string) Queries {
	utterance = strings.TrimSpace(utterance)
	queries := Queries{Dense: utterance, Sparse: utterance}
	if utterance == "" {
		return queries
	}

	ctx, cancel := context.WithTimeout(ctx, rewriteTimeout)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if rewritten, ok := p.rewriteOne(ctx, denseRewritePrompt, utterance, 0.3); ok {
			queries.Dense = rewritten
		}
	}()
	go func() {
		defer wg.Done()
		if rewritten, ok := p.rewriteOne(ctx, sparseRewritePrompt, utterance, 0.1); ok {
			queries.Sparse = rewritten
		}
	}()

	wg.Wait()

	slog.Debug("preprocess: rewrote query",
		"dense", strutil.Truncate(queries.Dense, 100),
		"sparse", strutil.Truncate(queries.Sparse, 100),
	)
	return queries
}

func (p *Preprocessor) rewriteOne(ctx context.Context, systemPrompt, utterance string, temperature float32) (string, bool) {
	opts := &llm.Options{
		Temperature: &temperature,
		MaxTokens:   rewriteMaxTokens,
	}
	content, _, err := p.llm.Chat(ctx, llm.FormatMessages(systemPrompt, utterance, nil), opts)
	if err != nil {
		slog.Warn("preprocess: rewrite failed, keeping original utterance", "error", err)
		return "", false
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", false
	}
	return content, true
}
