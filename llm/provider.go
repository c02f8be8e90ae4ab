package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/BaSui01/switchboard/types"
)

// ErrorCode classifies generation failures.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"
	ErrQuotaExceeded       ErrorCode = "LLM_QUOTA_EXCEEDED"
	ErrContentFiltered     ErrorCode = "LLM_CONTENT_FILTERED"
	ErrModelOverloaded     ErrorCode = "LLM_MODEL_OVERLOADED"
	ErrUpstreamTimeout     ErrorCode = "LLM_UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR"
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE"
)

// Error is returned by every Generator in this package.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// Timeout reports whether the call ran out of time.
func (e *Error) Timeout() bool { return e.Code == ErrUpstreamTimeout }

// Classify maps a generation error onto the two engine-level classes:
// types.ErrTimeout or types.ErrProviderError.
func Classify(err error) types.ErrorCode {
	var le *Error
	if errors.As(err, &le) && le.Timeout() {
		return types.ErrTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrTimeout
	}
	return types.ErrProviderError
}

// Role of a message in a generation request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn passed as conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the phrasing request a responder sends.
type GenerateRequest struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	UserPrompt   string    `json:"user_prompt"`
	History      []Message `json:"history,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float32   `json:"temperature,omitempty"`
}

// Generator turns a prompt into reply text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// mapHTTPError maps an upstream status to an *Error with the retry flag set.
func mapHTTPError(status int, msg string, provider string) *Error {
	e := &Error{Message: msg, HTTPStatus: status, Provider: provider}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = ErrUnauthorized
	case status == http.StatusTooManyRequests:
		e.Code, e.Retryable = ErrRateLimited, true
	case status == http.StatusBadRequest:
		e.Code = ErrInvalidRequest
		if containsAny(msg, "quota", "credit") {
			e.Code = ErrQuotaExceeded
		} else if containsAny(msg, "content_filter", "content policy") {
			e.Code = ErrContentFiltered
		}
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		e.Code, e.Retryable = ErrUpstreamTimeout, true
	case status == 529:
		e.Code, e.Retryable = ErrModelOverloaded, true
	default:
		e.Code, e.Retryable = ErrUpstreamError, status >= 500
	}
	return e
}
