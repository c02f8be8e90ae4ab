package tokenizer

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Tokenizer is the unified token counting interface.
type Tokenizer interface {
	// CountTokens returns the number of tokens in text.
	CountTokens(text string) (int, error)

	// MaxTokens returns the model's context length.
	MaxTokens() int

	// Name returns the tokenizer name.
	Name() string
}

// ForModel returns the tokenizer for a model name. Names without a known
// tiktoken encoding, and the empty name, get the estimator.
func ForModel(model string) Tokenizer {
	if _, ok := lookupEncoding(strings.ToLower(model)); ok {
		return NewTiktokenTokenizer(model)
	}
	return NewEstimatorTokenizer(model, 0)
}

// Counter adapts a Tokenizer to the error-free counting used for history
// budgets. A failing tokenizer (encoding data unavailable) degrades to the
// estimator and logs once.
type Counter struct {
	primary  Tokenizer
	fallback *EstimatorTokenizer
	logger   *zap.Logger
	warnOnce sync.Once
}

// NewCounter wraps t. A nil t counts with the estimator only.
func NewCounter(t Tokenizer, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{
		primary:  t,
		fallback: NewEstimatorTokenizer("", 0),
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

// CountTokens never fails.
func (c *Counter) CountTokens(text string) int {
	if c.primary != nil {
		n, err := c.primary.CountTokens(text)
		if err == nil {
			return n
		}
		c.warnOnce.Do(func() {
			c.logger.Warn("tokenizer unavailable, falling back to estimator",
				zap.String("tokenizer", c.primary.Name()),
				zap.Error(err))
		})
	}
	n, _ := c.fallback.CountTokens(text)
	return n
}
