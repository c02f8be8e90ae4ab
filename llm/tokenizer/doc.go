// Package tokenizer counts tokens for prompt budgeting. It offers an exact
// tiktoken counter for OpenAI-family models and a rune-based estimator that
// needs no encoding data.
package tokenizer
