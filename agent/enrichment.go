package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/switchboard/types"
)

// estimateCounter approximates tokens at four characters per token.
type estimateCounter struct{}

func (estimateCounter) CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return n/4 + 1
}

// historyRenderer turns earlier turns and the current routing path into the
// plain-text summary injected for context-aware responders.
type historyRenderer struct {
	counter TokenCounter
	budget  int
}

// Render keeps the newest lines that fit the token budget.
func (h historyRenderer) Render(s *ConversationState) string {
	lines := make([]string, 0, len(s.Transcript)+2)
	for _, t := range s.Transcript {
		switch {
		case t.Role == "agent" && t.Agent != "":
			lines = append(lines, fmt.Sprintf("agent (%s): %s", t.Agent, t.Content))
		default:
			lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Content))
		}
	}
	if len(s.AgentHistory) > 0 {
		lines = append(lines, "routed via: "+strings.Join(s.AgentHistory, " -> "))
	}
	if s.CurrentMessage != "" {
		lines = append(lines, "customer: "+s.CurrentMessage)
	}
	if h.budget <= 0 || h.counter == nil {
		return strings.Join(lines, "\n")
	}

	used := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		cost := h.counter.CountTokens(lines[i]) + 1
		if used+cost > h.budget {
			break
		}
		used += cost
		start = i
	}
	return strings.Join(lines[start:], "\n")
}

// enrich injects what reg's capabilities ask for into s, which is the hop's
// private copy.
func (o *Orchestrator) enrich(ctx context.Context, s *ConversationState, reg Registration) error {
	caps := reg.Capabilities

	if caps.Has(CapContextAware) {
		s.HistorySummary = o.history.Render(s)
	}
	if !caps.Has(CapMultiTurn) {
		s.Transcript = nil
	}

	if caps.Has(CapEntityExtraction) && o.extractor != nil {
		found, err := o.extractor.Extract(ctx, s.CurrentMessage)
		if err != nil {
			return types.NewError(types.ErrGenerationFailure, "entity extraction failed").
				WithCause(err).WithComponent("entities")
		}
		if s.Entities == nil {
			s.Entities = make(map[string]any, len(found))
		}
		// caller-supplied entities win
		for k, v := range found {
			if _, ok := s.Entities[k]; !ok {
				s.Entities[k] = v
			}
		}
	}

	if caps.Has(CapKBSearch) {
		if o.kb == nil {
			return types.Errorf(types.ErrCapabilityMismatch,
				"responder %s declares kb_search but no knowledge base is configured", reg.Name)
		}
		kbCtx, cancel := context.WithTimeout(ctx, o.opts.KBTimeout)
		defer cancel()
		results, err := o.kb.Search(kbCtx, s.CurrentMessage, reg.Category, o.opts.KBResultLimit)
		if err != nil {
			code := types.ErrGenerationFailure
			if errors.Is(err, context.DeadlineExceeded) {
				code = types.ErrTimeout
			}
			return types.NewError(code, "knowledge base search failed").
				WithCause(err).WithComponent("kb").WithRetryable(code == types.ErrTimeout)
		}
		if results == nil {
			results = []KBResult{}
		}
		s.KBResults = results
	}
	return nil
}
