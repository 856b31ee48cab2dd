package llm

import "errors"

var (
	// ErrUnavailable marks LLM failures that persisted through retries,
	// missing configuration, or exhausted budgets. Callers degrade to their
	// documented fallback behavior instead of surfacing this to users.
	ErrUnavailable = errors.New("llm unavailable")

	// ErrParse marks structurally invalid model output: the call succeeded
	// but the content could not be decoded as the expected JSON shape.
	ErrParse = errors.New("llm response parse failed")
)
