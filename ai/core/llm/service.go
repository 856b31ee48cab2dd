package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/luoshen/linkmate/ai/stats"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// CallStats represents statistics for a single LLM call.
type CallStats struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	TotalDurationMs  int64 `json:"total_duration_ms"`
}

// Options tunes a single LLM call. A nil Options uses the service defaults.
type Options struct {
	Temperature *float32
	MaxTokens   int
	Model       string // override the configured model
	JSONMode    bool   // request response_format json_object
	RequestID   string // propagated into logs only
}

// Service is the LLM service interface.
type Service interface {
	// Chat performs synchronous chat. Returns content, statistics, and error.
	Chat(ctx context.Context, messages []Message, opts *Options) (string, *CallStats, error)

	// JSONChat performs a chat expected to return a JSON object, decodes the
	// object into out, and returns the raw content. Markdown code fences and
	// surrounding prose in the model output are tolerated.
	JSONChat(ctx context.Context, messages []Message, opts *Options, out any) (string, *CallStats, error)

	// ChatStream performs streaming chat. Returns content channel, stats channel, and error channel.
	// The stats channel is closed after sending the final stats when the stream completes.
	ChatStream(ctx context.Context, messages []Message) (<-chan string, <-chan *CallStats, <-chan error)

	// Warmup sends a lightweight ping request to establish and warm up the LLM connection.
	Warmup(ctx context.Context)
}

// Config represents LLM service configuration.
type Config struct {
	Model       string // glm-4-flash, deepseek-chat, gpt-4o, ...
	APIKey      string
	BaseURL     string  // any OpenAI-compatible endpoint
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.7
	Timeout     int     // request timeout in seconds (default: 120)
	MaxRPS      float64 // client-side rate limit, 0 disables

	// Counters receives one RecordLLMCall per attempted request. Optional.
	Counters *stats.Counters
}

const (
	maxAttempts    = 3
	backoffBase    = 1 * time.Second
	backoffFactor  = 1.5
	defaultTimeout = 120
)

type service struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     int
	limiter     *rate.Limiter
	counters    *stats.Counters
}

// NewService creates a new LLM Service speaking the OpenAI-compatible protocol.
func NewService(cfg *Config) (Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: %w: API key not configured", ErrUnavailable)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}

	var limiter *rate.Limiter
	if cfg.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), 1)
	}

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		limiter:     limiter,
		counters:    cfg.Counters,
	}, nil
}

func (s *service) Chat(ctx context.Context, messages []Message, opts *Options) (string, *CallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	req := s.buildRequest(messages, opts)

	slog.Debug("LLM: chat request",
		"model", req.Model,
		"messages_count", len(messages),
		"max_tokens", req.MaxTokens,
	)

	startTime := time.Now()

	resp, err := s.createWithRetry(ctx, req)
	if err != nil {
		slog.Error("LLM: chat request failed", "error", err)
		return "", nil, err
	}

	if len(resp.Choices) == 0 {
		slog.Warn("LLM: empty response")
		return "", nil, fmt.Errorf("llm: %w: no choices in response", ErrUnavailable)
	}

	totalDuration := time.Since(startTime)
	callStats := &CallStats{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		TotalDurationMs:  totalDuration.Milliseconds(),
	}

	slog.Debug("LLM: chat response received",
		"content_length", len(resp.Choices[0].Message.Content),
		"total_tokens", callStats.TotalTokens,
		"duration_ms", totalDuration.Milliseconds(),
	)

	return resp.Choices[0].Message.Content, callStats, nil
}

func (s *service) JSONChat(ctx context.Context, messages []Message, opts *Options, out any) (string, *CallStats, error) {
	if opts == nil {
		opts = &Options{}
	}
	opts.JSONMode = true

	content, callStats, err := s.Chat(ctx, messages, opts)
	if err != nil {
		return "", callStats, err
	}

	if err := DecodeJSON(content, out); err != nil {
		return content, callStats, err
	}
	return content, callStats, nil
}

func (s *service) ChatStream(ctx context.Context, messages []Message) (<-chan string, <-chan *CallStats, <-chan error) {
	contentChan := make(chan string, 10)
	statsChan := make(chan *CallStats, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(statsChan)
		defer close(errChan)

		ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		if err := s.wait(ctx); err != nil {
			errChan <- err
			return
		}
		if s.counters != nil {
			s.counters.RecordLLMCall()
		}

		req := s.buildRequest(messages, nil)
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

		startTime := time.Now()

		slog.Debug("LLM: stream starting", "model", req.Model, "messages", len(messages))
		stream, err := s.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			slog.Error("LLM: stream failed to create", "error", err)
			select {
			case errChan <- fmt.Errorf("create stream failed: %w", err):
			case <-ctx.Done():
			}
			return
		}
		defer func() { _ = stream.Close() }() //nolint:errcheck // cleanup

		chunkCount := 0
		for {
			response, err := stream.Recv()
			if err != nil {
				if strings.Contains(err.Error(), "EOF") {
					statsChan <- &CallStats{TotalDurationMs: time.Since(startTime).Milliseconds()}
					return
				}
				slog.Error("LLM: stream receive error", "error", err, "chunks_so_far", chunkCount)
				select {
				case errChan <- fmt.Errorf("stream recv failed: %w", err):
				case <-ctx.Done():
				}
				return
			}

			if response.Usage != nil && response.Usage.TotalTokens > 0 {
				statsChan <- &CallStats{
					PromptTokens:     response.Usage.PromptTokens,
					CompletionTokens: response.Usage.CompletionTokens,
					TotalTokens:      response.Usage.TotalTokens,
					TotalDurationMs:  time.Since(startTime).Milliseconds(),
				}
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			delta := response.Choices[0].Delta.Content
			if delta != "" {
				chunkCount++
				select {
				case contentChan <- delta:
				case <-ctx.Done():
					slog.Warn("LLM: stream context cancelled during send", "chunks", chunkCount)
					return
				}
			}

			if response.Choices[0].FinishReason != "" {
				statsChan <- &CallStats{TotalDurationMs: time.Since(startTime).Milliseconds()}
				return
			}
		}
	}()

	return contentChan, statsChan, errChan
}

func (s *service) Warmup(ctx context.Context) {
	warmupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	slog.Info("LLM: starting connection warmup", "model", s.model)
	startTime := time.Now()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   1,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Hi"},
		},
	}
	_, err := s.client.CreateChatCompletion(warmupCtx, req)
	duration := time.Since(startTime)

	if err != nil {
		slog.Warn("LLM: warmup ping failed (first real request may be slower)",
			"model", s.model, "error", err, "duration_ms", duration.Milliseconds())
		return
	}
	slog.Info("LLM: connection warmed up", "model", s.model, "duration_ms", duration.Milliseconds())
}

// buildRequest merges per-call options over the service defaults.
func (s *service) buildRequest(messages []Message, opts *Options) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages:    convertMessages(messages),
	}
	if opts == nil {
		return req
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

// createWithRetry retries transient failures with exponential backoff
// (1.0s base, 1.5x factor, 3 attempts). Permanent errors return immediately.
func (s *service) createWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			slog.Warn("LLM: retrying after transient failure",
				"attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return openai.ChatCompletionResponse{}, fmt.Errorf("llm: %w: %v", ErrUnavailable, ctx.Err())
			}
		}

		if err := s.wait(ctx); err != nil {
			return openai.ChatCompletionResponse{}, err
		}
		if s.counters != nil {
			s.counters.RecordLLMCall()
		}

		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !isRetryable(err) {
			return openai.ChatCompletionResponse{}, fmt.Errorf("llm: %w: %v", ErrUnavailable, err)
		}
		lastErr = err
	}
	return openai.ChatCompletionResponse{}, fmt.Errorf("llm: %w after %d attempts: %v", ErrUnavailable, maxAttempts, lastErr)
}

func (s *service) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("llm: %w: %v", ErrUnavailable, err)
	}
	return nil
}

func backoffDelay(attempt int) time.Duration {
	delay := float64(backoffBase)
	for i := 1; i < attempt; i++ {
		delay *= backoffFactor
	}
	return time.Duration(delay)
}

// isRetryable reports whether a request failure is worth another attempt.
// Rate limits and server-side errors are transient; auth and bad-request
// errors are not.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// go-openai wraps connection failures in plain errors.
	msg := err.Error()
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "EOF")
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		llmMessages[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return llmMessages
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Helper for creating system prompts.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// Helper for creating user messages.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// Helper for creating assistant messages.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// FormatMessages formats messages for prompt templates.
func FormatMessages(systemPrompt string, userContent string, history []Message) []Message {
	messages := []Message{}
	if systemPrompt != "" {
		messages = append(messages, SystemPrompt(systemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, UserMessage(userContent))
	return messages
}
