package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/luoshen/linkmate/ai/evaluate"
	"github.com/luoshen/linkmate/ai/retrieval"
)

// processSearch runs the retrieve-evaluate loop, escalating through the
// strategy order until the results are worth showing or options run out.
// An attempt that finds fewer candidates than asked for escalates even
// when the evaluator would stop.
func (s *Scheduler) processSearch(ctx context.Context, turn *turnContext) *Response {
	searchStart := time.Now()
	queries := s.preprocessor.Rewrite(ctx, turn.req.Message)

	limit := turn.req.Limit
	if limit <= 0 {
		limit = 10
	}

	var (
		evaluation *evaluate.Evaluation
		strategy   retrieval.Strategy
		retrieveOK bool
		attempts   int
		totalFound int
	)
	for i, candidate := range retrieval.EscalationOrder {
		attemptStart := time.Now()
		result, err := s.retriever.Retrieve(ctx, retrieval.Request{
			Queries:      queries,
			Strategy:     candidate,
			Limit:        limit,
			ViewedIDs:    turn.req.ViewedUserIDs,
			SwipedIDs:    turn.req.SwipedUserIDs,
			FetchDetails: true,
			RequestID:    turn.requestID,
		})
		attempts = i + 1
		if err != nil {
			slog.Warn("agent: retrieval attempt failed",
				"request_id", turn.requestID, "strategy", candidate, "error", err)
			continue
		}
		retrieveOK = true
		strategy = candidate
		totalFound = result.TotalFound
		if s.exporter != nil {
			s.exporter.RecordRetrieval(string(candidate), time.Since(attemptStart))
		}

		evaluation = s.evaluator.Evaluate(ctx, evaluate.Request{
			Query:           turn.req.Message,
			Candidates:      result.Candidates,
			Attempt:         attempts,
			TotalFound:      result.TotalFound,
			CurrentUser:     turn.userProfile,
			ReferencedUsers: turn.referenced,
			Language:        turn.language,
		})
		slog.Info("agent: search attempt evaluated",
			"request_id", turn.requestID,
			"strategy", candidate,
			"candidates", len(result.Candidates),
			"total_found", result.TotalFound,
			"quality", evaluation.Quality,
			"should_continue", evaluation.ShouldContinue,
		)

		if i == len(retrieval.EscalationOrder)-1 {
			break
		}
		if result.TotalFound < limit {
			continue
		}
		if evaluation.Quality == evaluate.QualityGood || evaluation.Quality == evaluate.QualityExcellent {
			break
		}
		if !evaluation.ShouldContinue {
			break
		}
	}

	if !retrieveOK {
		slog.Error("agent: every retrieval strategy failed", "request_id", turn.requestID)
		s.counters.RecordFailure()
		return s.errorResponse(turn.requestID, turn.language, turn.langConf)
	}

	if s.exporter != nil {
		s.exporter.RecordQuality(string(evaluation.Quality))
	}
	s.counters.RecordSearch(time.Since(searchStart))

	resp := newResponse(turn, TypeSearchResults)
	resp.Quality = evaluation.Quality
	resp.Strategy = strategy
	resp.Candidates = evaluation.Selections
	resp.CandidateCount = len(evaluation.Selections)
	resp.TotalCandidatesFound = totalFound
	resp.SearchAttempts = attempts
	resp.Message = searchMessage(turn.language, evaluation)
	return resp
}

// searchMessage composes the envelope message. A poor final verdict gets
// guidance toward a narrower or different ask instead of an empty list
// with no explanation.
func searchMessage(language string, evaluation *evaluate.Evaluation) string {
	if evaluation.Quality == evaluate.QualityPoor {
		if language == LangChinese {
			return "没有找到足够匹配的人。换一种描述方式, 或者放宽一些条件再试试?"
		}
		return "I couldn't find a strong match. Try describing what you're looking for differently, or relax a constraint or two."
	}
	if evaluation.Summary != "" {
		return evaluation.Summary
	}
	if language == LangChinese {
		return "为你找到了这些人选。"
	}
	return "Here are the people I found for you."
}
