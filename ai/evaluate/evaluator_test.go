package evaluate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luoshen/linkmate/ai/core/llm"
	"github.com/luoshen/linkmate/ai/vector"
)

type fakeLLM struct {
	response   string
	err        error
	lastPrompt string
	lastOpts   *llm.Options
}

func (f *fakeLLM) Chat(_ context.Context, messages []llm.Message, opts *llm.Options) (string, *llm.CallStats, error) {
	if len(messages) > 0 {
		f.lastPrompt = messages[len(messages)-1].Content
	}
	f.lastOpts = opts
	if f.err != nil {
		return "", nil, f.err
	}
	return f.response, &llm.CallStats{}, nil
}

func (f *fakeLLM) JSONChat(ctx context.Context, messages []llm.Message, opts *llm.Options, out any) (string, *llm.CallStats, error) {
	content, callStats, err := f.Chat(ctx, messages, opts)
	if err != nil {
		return "", callStats, err
	}
	return content, callStats, llm.DecodeJSON(content, out)
}

func (f *fakeLLM) ChatStream(context.Context, []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error) {
	content := make(chan string)
	close(content)
	statsCh := make(chan *llm.CallStats)
	close(statsCh)
	errCh := make(chan error)
	close(errCh)
	return content, statsCh, errCh
}

func (f *fakeLLM) Warmup(context.Context) {}

func testCandidates(n int) []vector.Candidate {
	out := make([]vector.Candidate, n)
	for i := range out {
		out[i] = vector.Candidate{
			UserID: string(rune('a' + i)),
			Score:  1.0 - float64(i)*0.1,
			Payload: map[string]any{
				"company": "Acme",
			},
		}
	}
	return out
}

func TestEvaluateGood(t *testing.T) {
	fake := &fakeLLM{response: `{
		"quality": "good",
		"summary": "solid match on the main requirement",
		"should_continue": false,
		"selections": [
			{"user_id": "a", "match_reason": "golang backend, plays guitar"},
			{"user_id": "b", "match_reason": "close skill match", "concerns": "different city"}
		]
	}`}
	e := New(fake)

	eval := e.Evaluate(context.Background(), Request{Query: "golang engineer who plays guitar", Candidates: testCandidates(5)})
	assert.Equal(t, QualityGood, eval.Quality)
	assert.False(t, eval.ShouldContinue)
	assert.False(t, eval.Degraded)
	require.Len(t, eval.Selections, 2)
	assert.Equal(t, "a", eval.Selections[0].UserID)
	// Original payload rides along with the selection.
	assert.Equal(t, "Acme", eval.Selections[0].Candidate.Payload["company"])
}

func TestEvaluatePoorClearsSelections(t *testing.T) {
	fake := &fakeLLM{response: `{
		"quality": "poor",
		"summary": "nobody fits",
		"should_continue": true,
		"selections": [{"user_id": "a", "match_reason": "weak"}]
	}`}
	e := New(fake)

	eval := e.Evaluate(context.Background(), Request{Query: "an astronaut", Candidates: testCandidates(3)})
	assert.Equal(t, QualityPoor, eval.Quality)
	assert.Empty(t, eval.Selections)
	assert.True(t, eval.ShouldContinue)
}

func TestEvaluateCapsSelectionsAtThree(t *testing.T) {
	fake := &fakeLLM{response: `{
		"quality": "excellent",
		"selections": [
			{"user_id": "a", "match_reason": "r1"},
			{"user_id": "b", "match_reason": "r2"},
			{"user_id": "c", "match_reason": "r3"},
			{"user_id": "d", "match_reason": "r4"}
		]
	}`}
	e := New(fake)

	eval := e.Evaluate(context.Background(), Request{Query: "engineers", Candidates: testCandidates(5)})
	assert.Len(t, eval.Selections, 3)
}

func TestEvaluateDropsUnknownSelections(t *testing.T) {
	fake := &fakeLLM{response: `{
		"quality": "good",
		"selections": [
			{"user_id": "zzz", "match_reason": "hallucinated"},
			{"user_id": "a", "match_reason": "real"}
		]
	}`}
	e := New(fake)

	eval := e.Evaluate(context.Background(), Request{Query: "engineers", Candidates: testCandidates(3)})
	require.Len(t, eval.Selections, 1)
	assert.Equal(t, "a", eval.Selections[0].UserID)
}

func TestEvaluateLLMFailureFallsBack(t *testing.T) {
	e := New(&fakeLLM{err: errors.New("provider down")})

	eval := e.Evaluate(context.Background(), Request{Query: "engineers", Candidates: testCandidates(5)})
	assert.Equal(t, QualityFair, eval.Quality)
	assert.True(t, eval.Degraded)
	require.Len(t, eval.Selections, 3)
	assert.Equal(t, "a", eval.Selections[0].UserID)
	assert.Contains(t, eval.Selections[0].MatchReason, "Acme")
}

func TestEvaluateGarbageOutputFallsBack(t *testing.T) {
	e := New(&fakeLLM{response: "they all look fine to me"})

	eval := e.Evaluate(context.Background(), Request{Query: "engineers", Candidates: testCandidates(2)})
	assert.Equal(t, QualityFair, eval.Quality)
	assert.True(t, eval.Degraded)
	assert.Len(t, eval.Selections, 2)
}

func TestEvaluateEmptyCandidates(t *testing.T) {
	fake := &fakeLLM{}
	e := New(fake)

	eval := e.Evaluate(context.Background(), Request{Query: "anything", Candidates: nil})
	assert.Equal(t, QualityPoor, eval.Quality)
	assert.True(t, eval.ShouldContinue)
	assert.Empty(t, eval.Selections)
	// No LLM call for an empty set.
	assert.Nil(t, fake.lastOpts)
}

func TestEvaluateSerializesAtMostTen(t *testing.T) {
	fake := &fakeLLM{response: `{"quality":"fair","selections":[{"user_id":"a","match_reason":"r"}]}`}
	e := New(fake)

	e.Evaluate(context.Background(), Request{Query: "engineers", Candidates: testCandidates(15)})
	// Candidate k is the 11th; it must not be serialized.
	assert.False(t, strings.Contains(fake.lastPrompt, `"user_id":"k"`))
	assert.True(t, strings.Contains(fake.lastPrompt, `"user_id":"j"`))
}

func TestEvaluatePromptCarriesSearcherContext(t *testing.T) {
	fake := &fakeLLM{response: `{"quality":"fair","selections":[{"user_id":"a","match_reason":"r"}]}`}
	e := New(fake)

	e.Evaluate(context.Background(), Request{
		Query:      "golang engineer",
		Candidates: testCandidates(3),
		Attempt:    2,
		TotalFound: 17,
		CurrentUser: map[string]any{
			"name":    "Wei",
			"demands": []any{"cofounder with ML background"},
		},
		ReferencedUsers: map[string]map[string]any{
			"u9": {"name": "Marisol"},
		},
		Language: "en",
	})

	assert.Contains(t, fake.lastPrompt, "golang engineer")
	assert.Contains(t, fake.lastPrompt, "发起搜索的用户资料")
	assert.Contains(t, fake.lastPrompt, "cofounder with ML background")
	assert.Contains(t, fake.lastPrompt, "Marisol")
	assert.Contains(t, fake.lastPrompt, "第 2 次检索")
	assert.Contains(t, fake.lastPrompt, "17")
	assert.Contains(t, fake.lastPrompt, "用户语言: en")
}

func TestEvaluatePromptOmitsAbsentSearcherContext(t *testing.T) {
	fake := &fakeLLM{response: `{"quality":"fair","selections":[{"user_id":"a","match_reason":"r"}]}`}
	e := New(fake)

	e.Evaluate(context.Background(), Request{Query: "engineers", Candidates: testCandidates(2)})
	assert.NotContains(t, fake.lastPrompt, "发起搜索的用户资料")
}

func TestEvaluateTruncatesLongSummary(t *testing.T) {
	long := strings.Repeat("很长的总结。", 80)
	fake := &fakeLLM{response: `{"quality":"good","summary":"` + long + `","selections":[{"user_id":"a","match_reason":"r"}]}`}
	e := New(fake)

	eval := e.Evaluate(context.Background(), Request{Query: "engineers", Candidates: testCandidates(3)})
	// 200 kept runes plus the ellipsis marker.
	assert.Len(t, []rune(eval.Summary), 203)
	assert.True(t, strings.HasSuffix(eval.Summary, "..."))
}

func TestEvaluateUsesConfiguredSampling(t *testing.T) {
	fake := &fakeLLM{response: `{"quality":"fair","selections":[{"user_id":"a","match_reason":"r"}]}`}
	e := New(fake)

	e.Evaluate(context.Background(), Request{Query: "engineers", Candidates: testCandidates(2)})
	require.NotNil(t, fake.lastOpts)
	require.NotNil(t, fake.lastOpts.Temperature)
	assert.InDelta(t, 0.2, float64(*fake.lastOpts.Temperature), 1e-6)
	assert.Equal(t, 2000, fake.lastOpts.MaxTokens)
}

func TestComposeMatchReason(t *testing.T) {
	c := vector.Candidate{
		UserID: "u1",
		Score:  0.8,
		Payload: map[string]any{
			"skills":        []any{"golang", "kubernetes", "postgres", "redis"},
			"company":       "Acme",
			"university":    "Tongji",
			"project_count": float64(4),
		},
	}
	reason := composeMatchReason(c)
	assert.Contains(t, reason, "golang")
	assert.Contains(t, reason, "Acme")
	assert.Contains(t, reason, "Tongji")
	assert.Contains(t, reason, "4 projects")
	// Only the first three skills are listed.
	assert.NotContains(t, reason, "redis")
}

func TestComposeMatchReasonBarePayload(t *testing.T) {
	c := vector.Candidate{UserID: "u1", Score: 0.73}
	assert.Contains(t, composeMatchReason(c), "0.73")
}
