package declarative

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/llm"
	"github.com/BaSui01/switchboard/types"
)

// GeneratedResponder phrases its reply with a text generator. Its only rules
// are the ones in its definition: escalation keywords, a fixed confidence and
// an optional hand-off.
type GeneratedResponder struct {
	def       ResponderDefinition
	caps      agent.CapabilitySet
	generator llm.Generator
}

var _ agent.Responder = (*GeneratedResponder)(nil)

func (r *GeneratedResponder) Process(ctx context.Context, s *agent.ConversationState) (*agent.ConversationState, error) {
	text, err := r.generator.Generate(ctx, r.request(s))
	if err != nil {
		return nil, types.Errorf(llm.Classify(err), "responder %s: generation failed", r.def.Name).
			WithCause(err).
			WithComponent("llm")
	}

	s.AgentResponse = strings.TrimSpace(text)
	s.ResponseConfidence = r.confidence(s)
	if kw, ok := containsKeyword(s.CurrentMessage, r.def.EscalateKeywords); ok {
		s.NeedsEscalation = true
		s.SetExtension(r.def.Name, map[string]any{"escalate_keyword": kw})
	}

	switch {
	case r.def.NextAgent != "":
		s.NextAgent = r.def.NextAgent
		s.Status = agent.StatusActive
	case r.def.resolves():
		s.Status = agent.StatusResolved
	default:
		s.Status = agent.StatusActive
	}
	return s, nil
}

func (r *GeneratedResponder) confidence(s *agent.ConversationState) float64 {
	if r.def.KBMissConfidence != nil && len(s.KBResults) == 0 && r.caps.Has(agent.CapKBSearch) {
		return *r.def.KBMissConfidence
	}
	return r.def.Confidence
}

// request assembles the prompt from whatever the engine injected.
func (r *GeneratedResponder) request(s *agent.ConversationState) llm.GenerateRequest {
	var sys strings.Builder
	sys.WriteString(r.def.SystemPrompt)

	if s.HistorySummary != "" {
		sys.WriteString("\n\nConversation so far:\n")
		sys.WriteString(s.HistorySummary)
	}
	if len(s.KBResults) > 0 {
		sys.WriteString("\n\nRelevant knowledge:\n")
		for _, kb := range s.KBResults {
			fmt.Fprintf(&sys, "- %s: %s\n", kb.Title, kb.Content)
		}
	}
	if len(s.Entities) > 0 {
		keys := make([]string, 0, len(s.Entities))
		for k := range s.Entities {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sys.WriteString("\n\nKnown facts:\n")
		for _, k := range keys {
			fmt.Fprintf(&sys, "- %s: %v\n", k, s.Entities[k])
		}
	}

	req := llm.GenerateRequest{
		SystemPrompt: strings.TrimSpace(sys.String()),
		UserPrompt:   s.CurrentMessage,
		MaxTokens:    r.def.MaxTokens,
		Temperature:  r.def.Temperature,
	}
	for _, turn := range s.Transcript {
		role := llm.RoleUser
		if turn.Role == "agent" {
			role = llm.RoleAssistant
		}
		req.History = append(req.History, llm.Message{Role: role, Content: turn.Content})
	}
	return req
}

// TriageResponder routes a message to a specialist without replying.
type TriageResponder struct {
	def ResponderDefinition
}

var _ agent.Responder = (*TriageResponder)(nil)

func (r *TriageResponder) Process(_ context.Context, s *agent.ConversationState) (*agent.ConversationState, error) {
	s.ResponseConfidence = r.def.Confidence
	s.Status = agent.StatusActive

	route, matched := r.match(s)
	if route == "" {
		s.NeedsEscalation = true
		s.SetExtension(r.def.Name, map[string]any{"unrouted": true})
		return s, nil
	}
	s.NextAgent = route
	s.SetExtension(r.def.Name, map[string]any{"route": route, "matched": matched})
	return s, nil
}

// match checks the extracted intent first, then keywords in route order.
func (r *TriageResponder) match(s *agent.ConversationState) (route, matched string) {
	if intent, ok := s.Entities["intent"].(string); ok && intent != "" {
		for _, rt := range r.def.Routes {
			for _, in := range rt.Intents {
				if strings.EqualFold(in, intent) {
					return rt.Responder, "intent:" + intent
				}
			}
		}
	}
	for _, rt := range r.def.Routes {
		if kw, ok := containsKeyword(s.CurrentMessage, rt.Keywords); ok {
			return rt.Responder, kw
		}
	}
	if r.def.DefaultRoute != "" {
		return r.def.DefaultRoute, "default"
	}
	return "", ""
}

func containsKeyword(message string, keywords []string) (string, bool) {
	lower := strings.ToLower(message)
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}
