package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luoshen/linkmate/ai/core/llm"
)

type fakeLLM struct {
	response string
	err      error

	lastMessages []llm.Message
	lastOpts     *llm.Options
}

func (f *fakeLLM) Chat(_ context.Context, messages []llm.Message, opts *llm.Options) (string, *llm.CallStats, error) {
	f.lastMessages = messages
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
	if err := llm.DecodeJSON(content, out); err != nil {
		return content, callStats, err
	}
	return content, callStats, nil
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

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Intent
		wantConf float64
	}{
		{"search", `{"intent":"search","confidence":0.95,"reason":"wants to find people"}`, IntentSearch, 0.95},
		{"inquiry", `{"intent":"inquiry","confidence":0.8}`, IntentInquiry, 0.8},
		{"casual", `{"intent":"casual","confidence":0.7}`, IntentCasual, 0.7},
		{"fenced output", "```json\n{\"intent\":\"chat\",\"confidence\":0.6}\n```", IntentChat, 0.6},
		{"uppercase label", `{"intent":"SEARCH","confidence":0.9}`, IntentSearch, 0.9},
		{"confidence above one clamps", `{"intent":"search","confidence":1.7}`, IntentSearch, 1.0},
		{"negative confidence clamps", `{"intent":"search","confidence":-0.2}`, IntentSearch, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&fakeLLM{response: tt.response})
			result := c.Classify(context.Background(), "some message", nil)
			assert.Equal(t, tt.want, result.Intent)
			assert.InDelta(t, tt.wantConf, result.Confidence, 1e-9)
			assert.False(t, result.ClarificationNeeded)
		})
	}
}

func TestClassifyUnknownLabelDefaultsToChat(t *testing.T) {
	c := NewClassifier(&fakeLLM{response: `{"intent":"negotiate","confidence":0.9}`})
	result := c.Classify(context.Background(), "some message", nil)
	assert.Equal(t, IntentChat, result.Intent)
	assert.True(t, result.ClarificationNeeded)
}

func TestClassifyLLMFailure(t *testing.T) {
	c := NewClassifier(&fakeLLM{err: errors.New("provider down")})
	result := c.Classify(context.Background(), "some message", nil)
	assert.Equal(t, IntentChat, result.Intent)
	assert.InDelta(t, 0.3, result.Confidence, 1e-9)
	assert.True(t, result.ClarificationNeeded)
}

func TestClassifyGarbageOutput(t *testing.T) {
	c := NewClassifier(&fakeLLM{response: "I think this might be a search?"})
	result := c.Classify(context.Background(), "some message", nil)
	assert.Equal(t, IntentChat, result.Intent)
	assert.True(t, result.ClarificationNeeded)
}

func TestClassifyEmptyUtteranceSkipsLLM(t *testing.T) {
	fake := &fakeLLM{response: `{"intent":"search","confidence":0.9}`}
	c := NewClassifier(fake)
	result := c.Classify(context.Background(), "   ", nil)
	assert.Equal(t, IntentChat, result.Intent)
	assert.Nil(t, fake.lastMessages)
}

func TestClassifyPromptCarriesUserContext(t *testing.T) {
	fake := &fakeLLM{response: `{"intent":"inquiry","confidence":0.9}`}
	c := NewClassifier(fake)

	c.Classify(context.Background(), "tell me more about him", &Context{
		CurrentUser:    map[string]any{"name": "Wei", "goals": []any{"find a cofounder"}},
		ReferencedUser: map[string]any{"name": "Marisol", "company": "Acme"},
	})

	require.NotEmpty(t, fake.lastMessages)
	prompt := fake.lastMessages[len(fake.lastMessages)-1].Content
	assert.Contains(t, prompt, "tell me more about him")
	assert.Contains(t, prompt, "Marisol")
	assert.Contains(t, prompt, "被提及用户资料")
	assert.Contains(t, prompt, "Wei")
	assert.Contains(t, prompt, "当前用户资料")
}

func TestClassifyPromptOmitsAbsentContext(t *testing.T) {
	fake := &fakeLLM{response: `{"intent":"chat","confidence":0.5}`}
	c := NewClassifier(fake)

	c.Classify(context.Background(), "hello", &Context{})

	prompt := fake.lastMessages[len(fake.lastMessages)-1].Content
	assert.NotContains(t, prompt, "被提及用户资料")
	assert.NotContains(t, prompt, "当前用户资料")
}

func TestClassifyUsesLowTemperature(t *testing.T) {
	fake := &fakeLLM{response: `{"intent":"chat","confidence":0.5}`}
	c := NewClassifier(fake)
	c.Classify(context.Background(), "hello", nil)
	if assert.NotNil(t, fake.lastOpts) && assert.NotNil(t, fake.lastOpts.Temperature) {
		assert.InDelta(t, 0.1, float64(*fake.lastOpts.Temperature), 1e-6)
	}
	assert.Equal(t, 500, fake.lastOpts.MaxTokens)
}
