package declarative

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/llm"
	"github.com/BaSui01/switchboard/types"
)

// echoGenerator replies with the first line of the system prompt and records
// every request.
type echoGenerator struct {
	mu   sync.Mutex
	reqs []llm.GenerateRequest
	err  error
}

func (g *echoGenerator) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return "", g.err
	}
	return "re: " + req.UserPrompt, nil
}

func (g *echoGenerator) last() llm.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reqs[len(g.reqs)-1]
}

func ptr[T any](v T) *T { return &v }

func TestResponderFactory_Validate(t *testing.T) {
	f := NewResponderFactory(&echoGenerator{}, nil)
	noGen := NewResponderFactory(nil, nil)

	valid := ResponderDefinition{Name: "billing", Tier: "specialist", Category: "billing", Confidence: 0.8}

	tests := []struct {
		name    string
		factory *ResponderFactory
		mutate  func(d *ResponderDefinition)
		wantErr string
	}{
		{"valid", f, func(*ResponderDefinition) {}, ""},
		{"missing name", f, func(d *ResponderDefinition) { d.Name = " " }, "name is required"},
		{"bad tier", f, func(d *ResponderDefinition) { d.Tier = "boss" }, "unknown tier"},
		{"missing category", f, func(d *ResponderDefinition) { d.Category = "" }, "category is required"},
		{"bad capability", f, func(d *ResponderDefinition) { d.Capabilities = []string{"telepathy"} }, "unknown capability"},
		{"confidence too high", f, func(d *ResponderDefinition) { d.Confidence = 1.5 }, "confidence must be between 0 and 1"},
		{"kb miss confidence", f, func(d *ResponderDefinition) { d.KBMissConfidence = ptr(-0.1) }, "kb_miss_confidence"},
		{"negative max tokens", f, func(d *ResponderDefinition) { d.MaxTokens = -1 }, "max_tokens"},
		{"no generator", noGen, func(*ResponderDefinition) {}, "needs a text generator"},
		{"unknown kind", f, func(d *ResponderDefinition) { d.Kind = "oracle" }, "unknown kind"},
		{"triage without routes", noGen, func(d *ResponderDefinition) { d.Kind = KindTriage }, "routes or a default_route"},
		{"triage route without responder", noGen, func(d *ResponderDefinition) {
			d.Kind = KindTriage
			d.Routes = []Route{{Keywords: []string{"x"}}}
		}, "route 0: responder is required"},
		{"triage ok without generator", noGen, func(d *ResponderDefinition) {
			d.Kind = KindTriage
			d.DefaultRoute = "general"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := valid
			tt.mutate(&def)
			err := tt.factory.Validate(&def)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, f.Validate(nil))
}

func TestResponderFactory_ValidateJoinsErrors(t *testing.T) {
	f := NewResponderFactory(&echoGenerator{}, nil)
	err := f.Validate(&ResponderDefinition{Name: "x", Tier: "nope", Confidence: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier")
	assert.Contains(t, err.Error(), "category is required")
	assert.Contains(t, err.Error(), "confidence must be between 0 and 1")
}

func TestGeneratedResponder_Process(t *testing.T) {
	gen := &echoGenerator{}
	r, err := NewResponderFactory(gen, nil).Build(&ResponderDefinition{
		Name: "billing", Tier: "specialist", Category: "billing",
		Capabilities:     []string{"kb_search", "multi_turn"},
		SystemPrompt:     "You resolve billing questions.",
		Confidence:       0.8,
		KBMissConfidence: ptr(0.3),
		EscalateKeywords: []string{"Lawyer"},
		MaxTokens:        200,
	})
	require.NoError(t, err)

	s := agent.NewConversationState(agent.DispatchRequest{ConversationID: "c1", CurrentMessage: "refund please"})
	s.KBResults = []agent.KBResult{{Title: "Refunds", Content: "Refunds take 5 days."}}
	s.Entities = map[string]any{"order_id": "123"}
	s.HistorySummary = "customer: hello"
	s.Transcript = []agent.Turn{{Role: "customer", Content: "hello"}, {Role: "agent", Agent: "triage", Content: "hi"}}

	out, err := r.Process(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "re: refund please", out.AgentResponse)
	assert.Equal(t, agent.StatusResolved, out.Status)
	assert.InDelta(t, 0.8, out.ResponseConfidence, 1e-9)
	assert.False(t, out.NeedsEscalation)

	req := gen.last()
	assert.True(t, strings.HasPrefix(req.SystemPrompt, "You resolve billing questions."))
	assert.Contains(t, req.SystemPrompt, "- Refunds: Refunds take 5 days.")
	assert.Contains(t, req.SystemPrompt, "- order_id: 123")
	assert.Contains(t, req.SystemPrompt, "Conversation so far:\ncustomer: hello")
	assert.Equal(t, []llm.Message{{Role: llm.RoleUser, Content: "hello"}, {Role: llm.RoleAssistant, Content: "hi"}}, req.History)
	assert.Equal(t, 200, req.MaxTokens)

	// no knowledge and an escalation keyword
	s2 := agent.NewConversationState(agent.DispatchRequest{ConversationID: "c2", CurrentMessage: "my LAWYER will call"})
	s2.KBResults = []agent.KBResult{}
	out, err = r.Process(context.Background(), s2)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, out.ResponseConfidence, 1e-9)
	assert.True(t, out.NeedsEscalation)
	ext, ok := out.Extension("billing")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"escalate_keyword": "Lawyer"}, ext)
}

func TestGeneratedResponder_HandOffAndNoResolve(t *testing.T) {
	f := NewResponderFactory(&echoGenerator{}, nil)

	handoff, err := f.Build(&ResponderDefinition{Name: "a", Tier: "frontline", Category: "x", Confidence: 0.9, NextAgent: "b"})
	require.NoError(t, err)
	out, err := handoff.Process(context.Background(), agent.NewConversationState(agent.DispatchRequest{CurrentMessage: "hi"}))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusActive, out.Status)
	assert.Equal(t, "b", out.NextAgent)

	passive, err := f.Build(&ResponderDefinition{Name: "a", Tier: "frontline", Category: "x", Resolve: ptr(false)})
	require.NoError(t, err)
	out, err = passive.Process(context.Background(), agent.NewConversationState(agent.DispatchRequest{CurrentMessage: "hi"}))
	require.NoError(t, err)
	assert.Equal(t, agent.StatusActive, out.Status)
	assert.Empty(t, out.NextAgent)
}

func TestGeneratedResponder_GenerationError(t *testing.T) {
	gen := &echoGenerator{err: &llm.Error{Code: llm.ErrUpstreamTimeout, Message: "slow"}}
	r, err := NewResponderFactory(gen, nil).Build(&ResponderDefinition{Name: "a", Tier: "frontline", Category: "x"})
	require.NoError(t, err)

	_, err = r.Process(context.Background(), agent.NewConversationState(agent.DispatchRequest{CurrentMessage: "hi"}))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrTimeout))
	var le *llm.Error
	assert.ErrorAs(t, err, &le)
}

func TestTriageResponder_Process(t *testing.T) {
	def := ResponderDefinition{
		Name: "triage", Kind: KindTriage, Tier: "frontline", Category: "routing", Confidence: 0.9,
		Routes: []Route{
			{Responder: "billing", Keywords: []string{"refund", "invoice"}, Intents: []string{"billing"}},
			{Responder: "sales", Keywords: []string{"upgrade"}},
		},
	}
	r, err := NewResponderFactory(nil, nil).Build(&def)
	require.NoError(t, err)

	tests := []struct {
		name     string
		message  string
		entities map[string]any
		want     string
	}{
		{"keyword", "I need a Refund", nil, "billing"},
		{"second route", "can I upgrade?", nil, "sales"},
		{"intent wins over keyword", "upgrade", map[string]any{"intent": "BILLING"}, "billing"},
		{"no match", "hello there", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := agent.NewConversationState(agent.DispatchRequest{CurrentMessage: tt.message, Entities: tt.entities})
			out, err := r.Process(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.NextAgent)
			assert.Equal(t, agent.StatusActive, out.Status)
			assert.Equal(t, tt.want == "", out.NeedsEscalation)
			assert.Empty(t, out.AgentResponse)
		})
	}
}

func TestRegexpExtractor(t *testing.T) {
	x, err := NewRegexpExtractor([]EntityRule{
		{Name: "order_id", Pattern: `order\s+#?(\d+)`},
		{Name: "email", Pattern: `[\w.+-]+@[\w-]+\.\w+`},
		{Name: "order_id", Pattern: `#(\d+)`},
	})
	require.NoError(t, err)

	got, err := x.Extract(context.Background(), "Order #42 never arrived, mail me at a.b@example.com")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"order_id": "42", "email": "a.b@example.com"}, got)

	got, err = x.Extract(context.Background(), "nothing here")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewRegexpExtractor([]EntityRule{{Name: "bad", Pattern: "("}})
	assert.Error(t, err)
	_, err = NewRegexpExtractor([]EntityRule{{Pattern: "x"}})
	assert.Error(t, err)
}

func TestResponderFactory_Manifest(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := NewResponderFactory(&echoGenerator{}, zap.New(core))

	def, err := NewYAMLLoader().LoadBytes([]byte(sampleManifest), "yaml")
	require.NoError(t, err)
	def.Responders = append(def.Responders, ResponderDefinition{
		Name: "survey", Tier: "frontline", Category: "feedback", NextAgent: "ghost",
	})

	reg, err := agent.Bootstrap(nil, f.Manifest(def)...)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "general", "survey", "triage"}, reg.Names())

	billing, ok := reg.Lookup("billing")
	require.True(t, ok)
	assert.Equal(t, agent.TierSpecialist, billing.Tier)
	assert.True(t, billing.Capabilities.Has(agent.CapKBSearch))
	assert.True(t, billing.Capabilities.Has(agent.CapContextAware))

	assert.Equal(t, 1, logs.FilterField(zap.String("reference", "ghost")).Len())
	assert.Nil(t, f.Manifest(nil))
}

func TestResponderFactory_ManifestInvalidEntry(t *testing.T) {
	f := NewResponderFactory(nil, nil)
	_, err := agent.Bootstrap(nil, f.Manifest(&ManifestDefinition{
		Responders: []ResponderDefinition{{Name: "a", Tier: "frontline", Category: "x"}},
	})...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest entry 0")
}

type staticKB struct{ results []agent.KBResult }

func (k staticKB) Search(context.Context, string, string, int) ([]agent.KBResult, error) {
	return k.results, nil
}

type capturingQueue struct {
	mu   sync.Mutex
	recs []agent.EscalationRecord
}

func (q *capturingQueue) Enqueue(_ context.Context, rec agent.EscalationRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recs = append(q.recs, rec)
	return nil
}

func newManifestOrchestrator(t *testing.T, kb agent.KnowledgeBase) (*agent.Orchestrator, *echoGenerator, *capturingQueue) {
	t.Helper()
	gen := &echoGenerator{}
	def, err := NewYAMLLoader().LoadBytes([]byte(sampleManifest), "yaml")
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	f := NewResponderFactory(gen, logger)
	reg, err := agent.Bootstrap(logger, f.Manifest(def)...)
	require.NoError(t, err)
	extractor, err := NewRegexpExtractor(def.Entities)
	require.NoError(t, err)

	opts := agent.DefaultOptions()
	opts.EntryAgent = def.EntryAgent
	queue := &capturingQueue{}
	o := agent.NewOrchestrator(reg, opts,
		agent.WithKnowledgeBase(kb),
		agent.WithEntityExtractor(extractor),
		agent.WithEscalationQueue(queue),
		agent.WithLogger(logger),
	)
	return o, gen, queue
}

func TestManifest_EndToEnd(t *testing.T) {
	kb := staticKB{results: []agent.KBResult{{Title: "Refunds", Content: "Refunds take 5 days."}}}
	o, gen, queue := newManifestOrchestrator(t, kb)

	res := o.Handle(context.Background(), agent.DispatchRequest{
		ConversationID: "conv-1",
		CurrentMessage: "I want a refund for order #77",
	})
	assert.Equal(t, agent.StatusResolved, res.Status)
	assert.Equal(t, agent.ReasonResolved, res.TerminalReason)
	assert.Equal(t, []string{"triage", "billing"}, res.AgentHistory)
	assert.Equal(t, 2, res.TurnCount)
	assert.Equal(t, "re: I want a refund for order #77", res.AgentResponse)
	assert.Contains(t, gen.last().SystemPrompt, "- order_id: 77")
	assert.Empty(t, queue.recs)
}

func TestManifest_KBMissEscalatesOnLowConfidence(t *testing.T) {
	o, _, queue := newManifestOrchestrator(t, staticKB{})

	res := o.Handle(context.Background(), agent.DispatchRequest{
		ConversationID: "conv-2",
		CurrentMessage: "why is my invoice wrong",
	})
	assert.Equal(t, agent.StatusEscalated, res.Status)
	assert.Equal(t, agent.ReasonLowConfidence, res.TerminalReason)
	assert.Equal(t, []string{"triage", "billing"}, res.AgentHistory)
	require.Len(t, queue.recs, 1)
	assert.Equal(t, "billing", queue.recs[0].LastResponder)
}

func TestManifest_DefaultRouteResolvesImplicitly(t *testing.T) {
	o, _, _ := newManifestOrchestrator(t, staticKB{})

	res := o.Handle(context.Background(), agent.DispatchRequest{
		ConversationID: "conv-3",
		CurrentMessage: "what are your opening hours",
	})
	assert.Equal(t, agent.StatusResolved, res.Status)
	assert.Equal(t, []string{"triage", "general"}, res.AgentHistory)
}
