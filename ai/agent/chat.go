package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/luoshen/linkmate/ai/core/llm"
)

const chatSystemPrompt = `你是 LinkMate, 一个帮用户拓展人脉的对话助手。用户这条消息不是搜索请求, 自然地回应即可。

原则:
- 回答语言跟随用户
- 简短友好, 一两句话
- 如果用户看起来其实想找人, 引导他们说清楚想找什么样的人(技能、城市、目的), 这样你就能帮他们搜索`

const (
	chatTimeout   = 20 * time.Second
	chatMaxTokens = 300
)

// processChat handles small talk and anything the classifier could not
// place, nudging the user toward a concrete search when it fits.
func (s *Scheduler) processChat(ctx context.Context, turn *turnContext) *Response {
	ctx, cancel := context.WithTimeout(ctx, chatTimeout)
	defer cancel()

	userContent := turn.req.Message
	if turn.userProfile != nil {
		if me, err := json.Marshal(turn.userProfile); err == nil {
			userContent = fmt.Sprintf("%s\n\n(用户自己的资料, 仅供个性化回应: %s)", turn.req.Message, me)
		}
	}

	temp := float32(0.7)
	opts := &llm.Options{Temperature: &temp, MaxTokens: chatMaxTokens, RequestID: turn.requestID}
	messages := llm.FormatMessages(chatSystemPrompt, userContent, nil)

	resp := newResponse(turn, TypeChatReply)
	content, _, err := s.llm.Chat(ctx, messages, opts)
	if err != nil {
		slog.Warn("agent: chat reply failed, using canned reply",
			"request_id", turn.requestID, "error", err)
		resp.Message = cannedChatReply(turn.language, turn.intent.ClarificationNeeded)
		return resp
	}

	resp.Message = content
	return resp
}

func cannedChatReply(language string, clarify bool) string {
	if clarify {
		if language == LangChinese {
			return "我没太理解你的意思。你是想找什么样的人吗?可以说说对方的技能或背景。"
		}
		return "I'm not quite sure what you mean. Are you looking for someone? Tell me about the skills or background you have in mind."
	}
	if language == LangChinese {
		return "我在呢。想找什么样的人, 随时告诉我。"
	}
	return "I'm here. Whenever you want to find someone, just tell me what you're looking for."
}
