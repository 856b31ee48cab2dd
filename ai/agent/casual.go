package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/luoshen/linkmate/ai/core/llm"
	"github.com/luoshen/linkmate/store"
)

const casualSystemPrompt = `用户发来一条找人一起做休闲活动的消息(比如约球、约咖啡、约爬山)。提取活动信息。

Respond with a single JSON object:
{
  "activity": "normalized activity label in lowercase english, e.g. tennis, coffee, hiking",
  "optimized_query": "a short search query describing the ideal partner, in the user's language",
  "preferences": {"time": "...", "location": "...", "skill_level": "..."}
}
preferences 里只放消息中明确提到的字段。`

const (
	casualTimeout   = 20 * time.Second
	casualMaxTokens = 300
	casualEmbedCap  = 10 * time.Second
)

// processCasual records a standing casual activity request and reports any
// immediately compatible requests from other users. The record survives the
// turn; matching beyond the quick pass happens out of band.
func (s *Scheduler) processCasual(ctx context.Context, turn *turnContext) *Response {
	s.counters.RecordCasual()
	activity, optimizedQuery, preferences := s.extractCasual(ctx, turn)

	upsert := &store.UpsertCasualRequest{
		UserID:         turn.req.UserID,
		Activity:       activity,
		RawMessage:     turn.req.Message,
		OptimizedQuery: optimizedQuery,
		Preferences:    preferences,
		Embedding:      s.embedCasual(ctx, turn, optimizedQuery),
		UpdatedTs:      time.Now().Unix(),
	}

	resp := newResponse(turn, TypeCasualAck)
	resp.Casual = &CasualAck{Activity: activity, OptimizedQuery: optimizedQuery}

	if s.casualStore == nil || turn.req.UserID == "" {
		slog.Warn("agent: casual request not persisted",
			"request_id", turn.requestID, "has_store", s.casualStore != nil, "user_id", turn.req.UserID)
		resp.Message = casualAckMessage(turn.language, activity, false)
		return resp
	}

	record, err := s.casualStore.UpsertCasualRequest(ctx, upsert)
	if err != nil {
		slog.Error("agent: failed to persist casual request",
			"request_id", turn.requestID, "user_id", turn.req.UserID, "error", err)
		s.counters.RecordFailure()
		resp.Message = casualAckMessage(turn.language, activity, false)
		return resp
	}

	matches, err := s.matcher.Match(ctx, record)
	if err != nil {
		slog.Warn("agent: casual match pass failed",
			"request_id", turn.requestID, "error", err)
	}
	resp.Casual.Matches = matches
	resp.Message = casualAckMessage(turn.language, activity, len(matches) > 0)
	return resp
}

// extractCasual normalizes the utterance into an activity record. When the
// extraction call fails the raw message stands in for the query so the
// request is still recorded.
func (s *Scheduler) extractCasual(ctx context.Context, turn *turnContext) (activity, optimizedQuery, preferences string) {
	ctx, cancel := context.WithTimeout(ctx, casualTimeout)
	defer cancel()

	var decoded struct {
		Activity       string         `json:"activity"`
		OptimizedQuery string         `json:"optimized_query"`
		Preferences    map[string]any `json:"preferences"`
	}

	temp := float32(0.2)
	opts := &llm.Options{Temperature: &temp, MaxTokens: casualMaxTokens, RequestID: turn.requestID}
	messages := llm.FormatMessages(casualSystemPrompt, turn.req.Message, nil)

	if _, _, err := s.llm.JSONChat(ctx, messages, opts, &decoded); err != nil {
		slog.Warn("agent: casual extraction failed, recording raw message",
			"request_id", turn.requestID, "error", err)
		return "casual", turn.req.Message, "{}"
	}

	activity = decoded.Activity
	if activity == "" {
		activity = "casual"
	}
	optimizedQuery = decoded.OptimizedQuery
	if optimizedQuery == "" {
		optimizedQuery = turn.req.Message
	}

	prefs, err := json.Marshal(decoded.Preferences)
	if err != nil || decoded.Preferences == nil {
		prefs = []byte("{}")
	}
	return activity, optimizedQuery, string(prefs)
}

// embedCasual computes the write-through embedding. Nil on any failure;
// the matcher can re-embed later.
func (s *Scheduler) embedCasual(ctx context.Context, turn *turnContext, query string) []float32 {
	if s.embedder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, casualEmbedCap)
	defer cancel()

	embedding, err := s.embedder.EncodeDense(ctx, query)
	if err != nil {
		slog.Warn("agent: casual embedding failed, storing without vector",
			"request_id", turn.requestID, "error", err)
		return nil
	}
	return embedding
}

func casualAckMessage(language, activity string, hasMatches bool) string {
	if language == LangChinese {
		if hasMatches {
			return "记下了你的 " + activity + " 需求, 而且已经有人和你想法一样, 看看下面的匹配。"
		}
		return "记下了你的 " + activity + " 需求, 有合适的人我会告诉你。"
	}
	if hasMatches {
		return "Got it, I recorded your " + activity + " request, and someone is already looking for the same thing. Check the matches below."
	}
	return "Got it, I recorded your " + activity + " request. I'll let you know when someone compatible shows up."
}
