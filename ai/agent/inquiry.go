package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/luoshen/linkmate/ai/core/llm"
)

const inquirySystemPrompt = `你是人脉应用里的连接顾问。用户正在询问某位候选人的情况, 候选人资料以 JSON 附上。

结合用户自己的背景(如果提供)做双向分析: 这个人是否匹配用户的问题, 连接对双方有什么价值, 有什么值得注意的地方。

Respond with a single JSON object:
{
  "summary": "two or three sentences answering the user's question about this person",
  "strengths": ["notable strengths relevant to the question"],
  "fit_assessment": "how well this person fits what the user seems to need",
  "suggested_opener": "one natural first message the user could send"
}
回答语言跟随用户提问的语言。`

const (
	inquiryTimeout   = 30 * time.Second
	inquiryMaxTokens = 800
)

// processInquiry answers a question about a referenced person. Without a
// reference there is nobody to analyze, so the turn downgrades to a chat
// reply asking which person is meant.
func (s *Scheduler) processInquiry(ctx context.Context, turn *turnContext) *Response {
	if len(turn.referenced) == 0 {
		resp := newResponse(turn, TypeChatReply)
		if turn.language == LangChinese {
			resp.Message = "你想了解哪位候选人?告诉我名字或先发起一次搜索。"
		} else {
			resp.Message = "Which person would you like to know more about? Point me at a candidate or run a search first."
		}
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, inquiryTimeout)
	defer cancel()

	var decoded struct {
		Summary         string   `json:"summary"`
		Strengths       []string `json:"strengths"`
		FitAssessment   string   `json:"fit_assessment"`
		SuggestedOpener string   `json:"suggested_opener"`
	}

	temp := float32(0.3)
	opts := &llm.Options{Temperature: &temp, MaxTokens: inquiryMaxTokens, RequestID: turn.requestID}
	messages := llm.FormatMessages(inquirySystemPrompt, buildInquiryPrompt(turn), nil)

	if _, _, err := s.llm.JSONChat(ctx, messages, opts, &decoded); err != nil {
		slog.Warn("agent: inquiry analysis failed, replying with raw profile summary",
			"request_id", turn.requestID, "error", err)
		resp := newResponse(turn, TypeInquiryAnalysis)
		resp.Message = inquiryFallbackMessage(turn.language)
		resp.Analysis = map[string]any{"profiles": turn.referenced}
		return resp
	}

	resp := newResponse(turn, TypeInquiryAnalysis)
	resp.Message = decoded.Summary
	resp.Analysis = map[string]any{
		"summary":          decoded.Summary,
		"strengths":        decoded.Strengths,
		"fit_assessment":   decoded.FitAssessment,
		"suggested_opener": decoded.SuggestedOpener,
	}
	return resp
}

func buildInquiryPrompt(turn *turnContext) string {
	profiles, err := json.Marshal(turn.referenced)
	if err != nil {
		profiles = []byte("{}")
	}

	prompt := fmt.Sprintf("用户的问题: %s\n\n候选人资料:\n%s", turn.req.Message, profiles)
	if turn.userProfile != nil {
		if me, err := json.Marshal(turn.userProfile); err == nil {
			prompt += fmt.Sprintf("\n\n提问用户自己的资料:\n%s", me)
		}
	}
	return prompt
}

func inquiryFallbackMessage(language string) string {
	if language == LangChinese {
		return "详细分析暂时不可用, 以下是这位候选人的原始资料。"
	}
	return "Detailed analysis is temporarily unavailable; here is this person's raw profile."
}
