// Package evaluate judges retrieved candidates against the user's ask and
// picks the few worth showing.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/luoshen/linkmate/ai/core/llm"
	"github.com/luoshen/linkmate/ai/internal/strutil"
	"github.com/luoshen/linkmate/ai/vector"
)

// Quality grades how well a result set answers the ask.
type Quality string

const (
	QualityPoor      Quality = "poor"
	QualityFair      Quality = "fair"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// Selection is one candidate chosen for presentation.
type Selection struct {
	UserID      string `json:"user_id"`
	MatchReason string `json:"match_reason"`
	Concerns    string `json:"concerns,omitempty"`

	// Candidate carries the original retrieval payload and details; the
	// LLM's judgment never overwrites source data.
	Candidate vector.Candidate `json:"candidate"`
}

// Evaluation is the outcome of judging one result set.
type Evaluation struct {
	Quality        Quality     `json:"quality"`
	Summary        string      `json:"summary,omitempty"`
	Selections     []Selection `json:"selections"`
	ShouldContinue bool        `json:"should_continue"`

	// Degraded marks evaluations produced by the fallback path.
	Degraded bool `json:"degraded,omitempty"`
}

// Request is one judgment call. Query and Candidates are required; the
// rest is context that sharpens the bidirectional verdict.
type Request struct {
	Query      string
	Candidates []vector.Candidate

	// Attempt is the 1-based retrieval attempt this set came from.
	Attempt int
	// TotalFound is how many candidates survived retrieval before the
	// limit was applied.
	TotalFound int

	// CurrentUser is the searcher's own profile; without it the mutual-fit
	// half of the judgment has nothing to stand on.
	CurrentUser map[string]any
	// ReferencedUsers are profiles already in the conversation.
	ReferencedUsers map[string]map[string]any

	// Language selects the reply language ("zh" or "en").
	Language string
}

// Evaluator runs the bidirectional-fit judgment call.
type Evaluator struct {
	llm llm.Service
}

// New creates an evaluator on top of the shared LLM service.
func New(llmService llm.Service) *Evaluator {
	return &Evaluator{llm: llmService}
}

const evaluateSystemPrompt = `你是人脉搜索的结果评审员。给定用户需求、用户自己的资料和候选人列表, 评估检索质量并选出值得展示的人。

评估双向匹配: 候选人是否满足用户的需求、诉求和目标, 以及用户是否也可能满足候选人的诉求和目标。连接要对双方都有价值。

质量等级:
- "excellent": 至少 3 个候选人满足主要条件且双向契合度很强
- "good": 至少 3 个候选人满足主要条件且双向契合度不错
- "fair": 恰好 3 个候选人满足主要条件但双向契合度较弱
- "poor": 满足主要条件的候选人少于 3 个

Respond with a single JSON object:
{
  "quality": "poor|fair|good|excellent",
  "summary": "one sentence about the result set, at most 200 characters",
  "should_continue": true if a broader search would likely find better matches,
  "selections": [{"user_id": "...", "match_reason": "why this person fits", "concerns": "optional caveat"}]
}
Select at most 3. For "poor" quality select nobody.
summary 和 match_reason 使用与用户相同的语言。`

const (
	evaluateTimeout   = 30 * time.Second
	evaluateMaxTokens = 2000
	maxSerialized     = 10
	maxSelections     = 3
	maxSummaryLen     = 200
)

// Evaluate judges candidates against the ask. It never returns an error:
// when the judgment call fails the first candidates ship with payload-derived
// match reasons at fair quality.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) *Evaluation {
	if len(req.Candidates) == 0 {
		return &Evaluation{
			Quality:        QualityPoor,
			Summary:        "no candidates retrieved",
			ShouldContinue: true,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, evaluateTimeout)
	defer cancel()

	temp := float32(0.2)
	opts := &llm.Options{
		Temperature: &temp,
		MaxTokens:   evaluateMaxTokens,
	}

	var decoded struct {
		Quality        string `json:"quality"`
		Summary        string `json:"summary"`
		ShouldContinue bool   `json:"should_continue"`
		Selections     []struct {
			UserID      string `json:"user_id"`
			MatchReason string `json:"match_reason"`
			Concerns    string `json:"concerns"`
		} `json:"selections"`
	}

	userPrompt := buildEvaluatePrompt(req)
	messages := llm.FormatMessages(evaluateSystemPrompt, userPrompt, nil)
	if _, _, err := e.llm.JSONChat(ctx, messages, opts, &decoded); err != nil {
		slog.Warn("evaluate: judgment call failed, using fallback selection",
			"error", err, "candidates", len(req.Candidates))
		return fallbackEvaluation(req.Candidates)
	}

	quality := Quality(strings.ToLower(strings.TrimSpace(decoded.Quality)))
	switch quality {
	case QualityPoor, QualityFair, QualityGood, QualityExcellent:
	default:
		slog.Warn("evaluate: unknown quality label, using fallback", "label", decoded.Quality)
		return fallbackEvaluation(req.Candidates)
	}

	evaluation := &Evaluation{
		Quality:        quality,
		Summary:        strutil.Truncate(decoded.Summary, maxSummaryLen),
		ShouldContinue: decoded.ShouldContinue,
	}

	if quality == QualityPoor {
		// Poor means nothing is worth showing, whatever the model selected.
		return evaluation
	}

	byID := make(map[string]vector.Candidate, len(req.Candidates))
	for _, c := range req.Candidates {
		byID[c.UserID] = c
	}
	for _, sel := range decoded.Selections {
		candidate, ok := byID[sel.UserID]
		if !ok {
			slog.Warn("evaluate: selection references unknown candidate", "user_id", sel.UserID)
			continue
		}
		evaluation.Selections = append(evaluation.Selections, Selection{
			UserID:      sel.UserID,
			MatchReason: sel.MatchReason,
			Concerns:    sel.Concerns,
			Candidate:   candidate,
		})
		if len(evaluation.Selections) == maxSelections {
			break
		}
	}

	// A non-poor verdict with nothing valid selected is a model slip;
	// patch it the same way the fallback would.
	if len(evaluation.Selections) == 0 {
		evaluation.Selections = fallbackSelections(req.Candidates)
	}

	return evaluation
}

// buildEvaluatePrompt serializes the searcher's context plus at most
// maxSerialized candidates with their payloads and any enriched details.
func buildEvaluatePrompt(req Request) string {
	limit := len(req.Candidates)
	if limit > maxSerialized {
		limit = maxSerialized
	}

	type doc struct {
		UserID  string         `json:"user_id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload,omitempty"`
		Details map[string]any `json:"details,omitempty"`
	}
	docs := make([]doc, limit)
	for i := 0; i < limit; i++ {
		c := req.Candidates[i]
		payload := c.Payload
		if payload != nil {
			// The stored sparse copy is retrieval plumbing, not profile data.
			trimmed := make(map[string]any, len(payload))
			for k, v := range payload {
				if k != "sparse_vector" {
					trimmed[k] = v
				}
			}
			payload = trimmed
		}
		docs[i] = doc{UserID: c.UserID, Score: c.Score, Payload: payload, Details: c.Details}
	}

	serialized, err := json.Marshal(docs)
	if err != nil {
		serialized = []byte("[]")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "用户需求: %s\n", req.Query)
	if req.Attempt > 0 {
		fmt.Fprintf(&b, "第 %d 次检索, 共找到 %d 个候选人。\n", req.Attempt, req.TotalFound)
	}
	if req.Language != "" {
		fmt.Fprintf(&b, "用户语言: %s\n", req.Language)
	}
	if doc := prettyUser(req.CurrentUser); doc != "" {
		b.WriteString("\n发起搜索的用户资料:\n")
		b.WriteString(doc)
		b.WriteString("\n")
	}
	for id, profile := range req.ReferencedUsers {
		if doc := prettyUser(profile); doc != "" {
			fmt.Fprintf(&b, "\n对话中提到的用户 %s:\n%s\n", id, doc)
		}
	}
	fmt.Fprintf(&b, "\n候选人列表:\n%s", serialized)
	return b.String()
}

func prettyUser(doc map[string]any) string {
	if len(doc) == 0 {
		return ""
	}
	serialized, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return ""
	}
	return string(serialized)
}

// fallbackEvaluation ships the head of the list at fair quality with
// reasons composed from whatever the payload offers.
func fallbackEvaluation(candidates []vector.Candidate) *Evaluation {
	return &Evaluation{
		Quality:    QualityFair,
		Summary:    "automatic selection, detailed evaluation unavailable",
		Selections: fallbackSelections(candidates),
		Degraded:   true,
	}
}

func fallbackSelections(candidates []vector.Candidate) []Selection {
	limit := len(candidates)
	if limit > maxSelections {
		limit = maxSelections
	}
	selections := make([]Selection, 0, limit)
	for _, c := range candidates[:limit] {
		selections = append(selections, Selection{
			UserID:      c.UserID,
			MatchReason: composeMatchReason(c),
			Candidate:   c,
		})
	}
	return selections
}

// composeMatchReason builds a human-readable reason from payload facts.
func composeMatchReason(c vector.Candidate) string {
	var parts []string

	source := c.Details
	if source == nil {
		source = c.Payload
	}
	if source != nil {
		if skills, ok := source["skills"].([]any); ok && len(skills) > 0 {
			names := make([]string, 0, len(skills))
			for _, s := range skills {
				if name, ok := s.(string); ok {
					names = append(names, name)
				}
			}
			if len(names) > 3 {
				names = names[:3]
			}
			if len(names) > 0 {
				parts = append(parts, "skills: "+strings.Join(names, ", "))
			}
		}
		if company, ok := source["company"].(string); ok && company != "" {
			parts = append(parts, "works at "+company)
		}
		if university, ok := source["university"].(string); ok && university != "" {
			parts = append(parts, "studied at "+university)
		}
		if projects, ok := source["project_count"].(float64); ok && projects > 0 {
			parts = append(parts, fmt.Sprintf("%d projects", int(projects)))
		}
	}

	if len(parts) == 0 {
		return fmt.Sprintf("similarity score %.2f", c.Score)
	}
	return strutil.Truncate(strings.Join(parts, "; "), 200)
}
