// Package intent classifies what a conversation turn is asking for.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/luoshen/linkmate/ai/core/llm"
	"github.com/luoshen/linkmate/ai/internal/strutil"
)

// Intent is the coarse category of a user turn.
type Intent string

const (
	// IntentSearch asks to find new people ("find me a golang engineer").
	IntentSearch Intent = "search"
	// IntentInquiry asks about a specific referenced person.
	IntentInquiry Intent = "inquiry"
	// IntentChat is open conversation that needs a guided reply.
	IntentChat Intent = "chat"
	// IntentCasual proposes a casual activity to be matched later.
	IntentCasual Intent = "casual"
)

// Result is the classification outcome for one turn.
type Result struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`

	// ClarificationNeeded marks turns the classifier could not place,
	// including every degraded classification.
	ClarificationNeeded bool `json:"clarification_needed,omitempty"`
}

// Context carries the optional user documents serialized into the
// classification prompt. A pronoun like "him" is only resolvable when the
// model can see that a referenced user exists.
type Context struct {
	// CurrentUser is the profile of the user speaking.
	CurrentUser map[string]any
	// ReferencedUser is the first referenced profile, if any.
	ReferencedUser map[string]any
}

// Classifier maps a user utterance to one of the four intents.
type Classifier struct {
	llm llm.Service
}

// NewClassifier creates a classifier on top of the shared LLM service.
func NewClassifier(llmService llm.Service) *Classifier {
	return &Classifier{llm: llmService}
}

const classifySystemPrompt = `你是一个社交搜索助手的意图分类器。将用户消息归入以下四类之一:

- "search": 用户想寻找新的人 (例: "帮我找一个会弹吉他的工程师", "find me a designer in Berlin")
- "inquiry": 用户在询问某个已经出现过的具体的人 (例: "她是做什么工作的?", "tell me more about him")
- "chat": 普通聊天、寒暄、或无法归类的消息
- "casual": 用户想约一个轻量的活动 (例: "周末想找人打网球", "anyone up for coffee?")

判定提示:
- 消息用代词指代某人 ("他", "她", "this person") 且下方附有被提及用户资料时, 倾向 "inquiry"
- 包含明确的搜索动词 ("find", "looking for", "寻找") 时, 倾向 "search"
- 包含轻量社交活动 ("hike", "coffee", "看电影") 时, 倾向 "casual"

Respond with a single JSON object:
{"intent": "search|inquiry|chat|casual", "confidence": 0.0-1.0, "reason": "one short sentence"}`

const (
	classifyTimeout   = 10 * time.Second
	classifyMaxTokens = 500
)

// fallbackResult is returned whenever classification cannot complete. The
// turn is treated as chat so the user always gets a reply.
func fallbackResult() Result {
	return Result{
		Intent:              IntentChat,
		Confidence:          0.3,
		ClarificationNeeded: true,
	}
}

// Classify returns the intent for one utterance. turnCtx may be nil. It
// never returns an error: the degraded answer is a low-confidence chat
// classification.
func (c *Classifier) Classify(ctx context.Context, utterance string, turnCtx *Context) Result {
	if strings.TrimSpace(utterance) == "" {
		return fallbackResult()
	}

	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	temp := float32(0.1)
	opts := &llm.Options{
		Temperature: &temp,
		MaxTokens:   classifyMaxTokens,
	}

	var decoded struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}

	messages := llm.FormatMessages(classifySystemPrompt, buildClassifyPrompt(utterance, turnCtx), nil)
	if _, _, err := c.llm.JSONChat(ctx, messages, opts, &decoded); err != nil {
		slog.Warn("intent: classification failed, defaulting to chat",
			"error", err, "utterance", strutil.Truncate(utterance, 80))
		return fallbackResult()
	}

	result := Result{
		Intent:     Intent(strings.ToLower(strings.TrimSpace(decoded.Intent))),
		Confidence: clamp01(decoded.Confidence),
		Reason:     decoded.Reason,
	}

	switch result.Intent {
	case IntentSearch, IntentInquiry, IntentChat, IntentCasual:
	default:
		slog.Warn("intent: unknown intent label, defaulting to chat", "label", decoded.Intent)
		result.Intent = IntentChat
		result.ClarificationNeeded = true
	}

	slog.Debug("intent: classified",
		"intent", result.Intent,
		"confidence", fmt.Sprintf("%.2f", result.Confidence),
		"utterance", strutil.Truncate(utterance, 80),
	)
	return result
}

// buildClassifyPrompt appends the optional user documents as pretty JSON so
// the model can resolve pronouns and personalize the verdict.
func buildClassifyPrompt(utterance string, turnCtx *Context) string {
	var b strings.Builder
	b.WriteString("用户消息: ")
	b.WriteString(utterance)
	if turnCtx == nil {
		return b.String()
	}

	if doc := prettyJSON(turnCtx.ReferencedUser); doc != "" {
		b.WriteString("\n\n被提及用户资料:\n")
		b.WriteString(doc)
	}
	if doc := prettyJSON(turnCtx.CurrentUser); doc != "" {
		b.WriteString("\n\n当前用户资料:\n")
		b.WriteString(doc)
	}
	return b.String()
}

func prettyJSON(doc map[string]any) string {
	if len(doc) == 0 {
		return ""
	}
	serialized, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return ""
	}
	return string(serialized)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
