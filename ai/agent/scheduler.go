// Package agent routes conversation turns through classification,
// retrieval, evaluation and response assembly.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/luoshen/linkmate/ai/evaluate"
	"github.com/luoshen/linkmate/ai/intent"
	"github.com/luoshen/linkmate/ai/internal/strutil"
	"github.com/luoshen/linkmate/ai/metrics"
	"github.com/luoshen/linkmate/ai/preprocess"
	"github.com/luoshen/linkmate/ai/retrieval"
	"github.com/luoshen/linkmate/ai/stats"
	"github.com/luoshen/linkmate/store"

	"github.com/luoshen/linkmate/ai/core/llm"
)

// Classifier decides the intent of a turn, given any hydrated user
// context for pronoun resolution.
type Classifier interface {
	Classify(ctx context.Context, utterance string, turnCtx *intent.Context) intent.Result
}

// Preprocessor rewrites the utterance into retrieval queries.
type Preprocessor interface {
	Rewrite(ctx context.Context, utterance string) preprocess.Queries
}

// Retriever runs one hybrid search pass.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

// Evaluator judges a candidate list against the ask.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluate.Request) *evaluate.Evaluation
}

// ProfileReader fetches single profile documents for context hydration.
type ProfileReader interface {
	Get(ctx context.Context, userID string) (map[string]any, error)
}

// CasualStore persists casual activity requests.
type CasualStore interface {
	UpsertCasualRequest(ctx context.Context, upsert *store.UpsertCasualRequest) (*store.CasualRequest, error)
}

// Embedder supplies the optimized-query embedding written through with
// casual requests.
type Embedder interface {
	EncodeDense(ctx context.Context, text string) ([]float32, error)
}

// turnTimeout bounds one whole conversation turn.
const turnTimeout = 60 * time.Second

// Scheduler owns a turn end to end. Process never panics and never
// returns an error: every failure mode maps to an envelope.
type Scheduler struct {
	llm          llm.Service
	classifier   Classifier
	preprocessor Preprocessor
	retriever    Retriever
	evaluator    Evaluator
	profiles     ProfileReader
	casualStore  CasualStore
	embedder     Embedder
	matcher      CasualMatcher
	counters     *stats.Counters
	exporter     *metrics.PrometheusExporter
}

// Config wires the scheduler's collaborators. Matcher and Exporter are
// optional; Counters is required so every envelope can carry a snapshot.
type Config struct {
	LLM          llm.Service
	Classifier   Classifier
	Preprocessor Preprocessor
	Retriever    Retriever
	Evaluator    Evaluator
	Profiles     ProfileReader
	CasualStore  CasualStore
	Embedder     Embedder
	Matcher      CasualMatcher
	Counters     *stats.Counters
	Exporter     *metrics.PrometheusExporter
}

// NewScheduler creates the routing scheduler.
func NewScheduler(cfg *Config) *Scheduler {
	matcher := cfg.Matcher
	if matcher == nil {
		matcher = NoopMatcher{}
	}
	counters := cfg.Counters
	if counters == nil {
		counters = stats.New()
	}
	return &Scheduler{
		llm:          cfg.LLM,
		classifier:   cfg.Classifier,
		preprocessor: cfg.Preprocessor,
		retriever:    cfg.Retriever,
		evaluator:    cfg.Evaluator,
		profiles:     cfg.Profiles,
		casualStore:  cfg.CasualStore,
		embedder:     cfg.Embedder,
		matcher:      matcher,
		counters:     counters,
		exporter:     cfg.Exporter,
	}
}

// turnContext carries everything dispatch targets need.
type turnContext struct {
	req       Request
	requestID string
	language  string
	langConf  float64
	intent    intent.Result

	// userProfile and referenced are best-effort hydrated documents.
	userProfile map[string]any
	referenced  map[string]map[string]any
}

// Process handles one turn. The returned envelope always carries
// processing_time and a stats snapshot.
func (s *Scheduler) Process(ctx context.Context, req Request) (resp *Response) {
	start := time.Now()
	requestID := shortuuid.New()
	s.counters.RecordRequest()

	language, langConf := DetectLanguage(req.Message)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("agent: recovered from panic", "request_id", requestID, "panic", r)
			s.counters.RecordFailure()
			resp = s.errorResponse(requestID, language, langConf)
		}
		s.seal(resp, req, start)
	}()

	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	slog.Info("agent: turn started",
		"request_id", requestID,
		"user_id", req.UserID,
		"message", strutil.Truncate(req.Message, 120),
		"language", language,
	)

	turn := &turnContext{
		req:       req,
		requestID: requestID,
		language:  language,
		langConf:  langConf,
	}
	// Hydration runs first so the classifier can see the referenced
	// user's document when resolving pronouns.
	s.hydrate(ctx, turn)
	turn.intent = s.classifier.Classify(ctx, req.Message, &intent.Context{
		CurrentUser:    turn.userProfile,
		ReferencedUser: firstReferenced(turn),
	})

	switch turn.intent.Intent {
	case intent.IntentSearch:
		resp = s.processSearch(ctx, turn)
	case intent.IntentInquiry:
		resp = s.processInquiry(ctx, turn)
	case intent.IntentCasual:
		resp = s.processCasual(ctx, turn)
	default:
		resp = s.processChat(ctx, turn)
	}

	if ctx.Err() == context.DeadlineExceeded {
		slog.Warn("agent: turn deadline exceeded", "request_id", requestID)
		s.counters.RecordFailure()
		resp = s.errorResponse(requestID, language, langConf)
	}

	resp.Intent = turn.intent.Intent
	resp.IntentConfidence = turn.intent.Confidence

	if s.exporter != nil {
		s.exporter.RecordTurn(string(turn.intent.Intent), time.Since(start), resp.Type != TypeError)
	}
	slog.Info("agent: turn finished",
		"request_id", requestID,
		"intent", turn.intent.Intent,
		"type", resp.Type,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp
}

// hydrate pulls the current user's and referenced users' profiles.
// Failures drop the document, never the turn.
func (s *Scheduler) hydrate(ctx context.Context, turn *turnContext) {
	if s.profiles == nil {
		return
	}
	if turn.req.UserID != "" {
		doc, err := s.profiles.Get(ctx, turn.req.UserID)
		if err != nil {
			slog.Warn("agent: failed to hydrate user profile",
				"request_id", turn.requestID, "user_id", turn.req.UserID, "error", err)
		} else {
			turn.userProfile = doc
		}
	}
	if len(turn.req.ReferencedUserIDs) > 0 {
		turn.referenced = make(map[string]map[string]any, len(turn.req.ReferencedUserIDs))
		for _, id := range turn.req.ReferencedUserIDs {
			doc, err := s.profiles.Get(ctx, id)
			if err != nil {
				slog.Warn("agent: failed to hydrate referenced profile",
					"request_id", turn.requestID, "user_id", id, "error", err)
				continue
			}
			turn.referenced[id] = doc
		}
	}
}

// seal stamps the invariants every envelope carries.
func (s *Scheduler) seal(resp *Response, req Request, start time.Time) {
	if resp == nil {
		return
	}
	resp.Query = req.Message
	resp.Timestamp = time.Now().UTC()
	if resp.Type == TypeError {
		resp.Status = "error"
	} else {
		resp.Status = "success"
	}
	resp.ProcessingTime = time.Since(start).Seconds()
	resp.Stats = s.counters.Snapshot()
}

// firstReferenced returns the hydrated document of the first referenced
// user, honoring the request's ID order.
func firstReferenced(turn *turnContext) map[string]any {
	for _, id := range turn.req.ReferencedUserIDs {
		if doc, ok := turn.referenced[id]; ok {
			return doc
		}
	}
	return nil
}

func (s *Scheduler) errorResponse(requestID, language string, langConf float64) *Response {
	message := "Something went wrong while handling your request. Please try again."
	if language == LangChinese {
		message = "处理你的请求时出了点问题, 请稍后再试。"
	}
	return &Response{
		Type:               TypeError,
		RequestID:          requestID,
		Message:            message,
		Language:           language,
		LanguageConfidence: langConf,
	}
}

// newResponse pre-fills the envelope fields shared by all turn outcomes.
func newResponse(turn *turnContext, t ResponseType) *Response {
	return &Response{
		Type:               t,
		RequestID:          turn.requestID,
		Language:           turn.language,
		LanguageConfidence: turn.langConf,
	}
}
