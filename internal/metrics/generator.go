package metrics

import (
	"context"
	"time"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/llm"
)

// InstrumentedGenerator records request count, latency and token usage of
// the generator it wraps.
type InstrumentedGenerator struct {
	inner     llm.Generator
	collector *Collector
	provider  string
	model     string
	counter   agent.TokenCounter
}

// InstrumentGenerator wraps g. counter may be nil, in which case token usage
// is not recorded.
func (c *Collector) InstrumentGenerator(g llm.Generator, provider, model string, counter agent.TokenCounter) *InstrumentedGenerator {
	return &InstrumentedGenerator{
		inner:     g,
		collector: c,
		provider:  provider,
		model:     model,
		counter:   counter,
	}
}

func (g *InstrumentedGenerator) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	start := time.Now()
	text, err := g.inner.Generate(ctx, req)

	status := "success"
	if err != nil {
		status = string(llm.Classify(err))
	}
	var prompt, completion int
	if g.counter != nil {
		prompt = g.counter.CountTokens(req.SystemPrompt) + g.counter.CountTokens(req.UserPrompt)
		for _, m := range req.History {
			prompt += g.counter.CountTokens(m.Content)
		}
		if err == nil {
			completion = g.counter.CountTokens(text)
		}
	}
	g.collector.RecordLLMRequest(g.provider, g.model, status, time.Since(start), prompt, completion)
	return text, err
}
