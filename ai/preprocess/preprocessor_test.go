package preprocess

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/luoshen/linkmate/ai/core/llm"
)

// routingLLM answers dense and sparse rewrites differently and can fail
// either leg independently.
type routingLLM struct {
	mu          sync.Mutex
	denseReply  string
	sparseReply string
	denseErr    error
	sparseErr   error
	calls       int
}

func (f *routingLLM) Chat(_ context.Context, messages []llm.Message, _ *llm.Options) (string, *llm.CallStats, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if len(messages) > 0 && strings.Contains(messages[0].Content, "关键词") {
		if f.sparseErr != nil {
			return "", nil, f.sparseErr
		}
		return f.sparseReply, &llm.CallStats{}, nil
	}
	if f.denseErr != nil {
		return "", nil, f.denseErr
	}
	return f.denseReply, &llm.CallStats{}, nil
}

func (f *routingLLM) JSONChat(ctx context.Context, messages []llm.Message, opts *llm.Options, out any) (string, *llm.CallStats, error) {
	content, callStats, err := f.Chat(ctx, messages, opts)
	if err != nil {
		return "", callStats, err
	}
	return content, callStats, llm.DecodeJSON(content, out)
}

func (f *routingLLM) ChatStream(context.Context, []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error) {
	content := make(chan string)
	close(content)
	statsCh := make(chan *llm.CallStats)
	close(statsCh)
	errCh := make(chan error)
	close(errCh)
	return content, statsCh, errCh
}

func (f *routingLLM) Warmup(context.Context) {}

func TestRewriteBothLegs(t *testing.T) {
	fake := &routingLLM{
		denseReply:  "An engineer in Shanghai who plays guitar and works on backend systems",
		sparseReply: "engineer shanghai guitar backend golang",
	}
	p := New(fake)

	queries := p.Rewrite(context.Background(), "find me a guitar-playing backend engineer in Shanghai")
	assert.Equal(t, fake.denseReply, queries.Dense)
	assert.Equal(t, fake.sparseReply, queries.Sparse)
	assert.Equal(t, 2, fake.calls)
}

func TestRewriteDenseFailureKeepsOriginal(t *testing.T) {
	fake := &routingLLM{
		denseErr:    errors.New("provider down"),
		sparseReply: "engineer shanghai",
	}
	p := New(fake)

	queries := p.Rewrite(context.Background(), "find an engineer in Shanghai")
	assert.Equal(t, "find an engineer in Shanghai", queries.Dense)
	assert.Equal(t, "engineer shanghai", queries.Sparse)
}

func TestRewriteBothFailuresKeepOriginal(t *testing.T) {
	fake := &routingLLM{
		denseErr:  errors.New("down"),
		sparseErr: errors.New("down"),
	}
	p := New(fake)

	queries := p.Rewrite(context.Background(), "original text")
	assert.Equal(t, "original text", queries.Dense)
	assert.Equal(t, "original text", queries.Sparse)
}

func TestRewriteEmptyReplyKeepsOriginal(t *testing.T) {
	fake := &routingLLM{denseReply: "  ", sparseReply: "tags here"}
	p := New(fake)

	queries := p.Rewrite(context.Background(), "original")
	assert.Equal(t, "original", queries.Dense)
	assert.Equal(t, "tags here", queries.Sparse)
}

func TestRewriteEmptyUtteranceSkipsLLM(t *testing.T) {
	fake := &routingLLM{denseReply: "x", sparseReply: "y"}
	p := New(fake)

	queries := p.Rewrite(context.Background(), "   ")
	assert.Equal(t, "", queries.Dense)
	assert.Equal(t, "", queries.Sparse)
	assert.Equal(t, 0, fake.calls)
}
