package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// scriptedStep is what a generated responder does on every call.
type scriptedStep struct {
	status     Status
	confidence float64
	next       string
	escalate   bool
	fail       bool
}

func genStep(names []string) *rapid.Generator[scriptedStep] {
	return rapid.Custom(func(t *rapid.T) scriptedStep {
		return scriptedStep{
			status:     rapid.SampledFrom([]Status{StatusActive, StatusResolved, StatusEscalated, StatusFailed}).Draw(t, "status"),
			confidence: rapid.Float64Range(-0.5, 1.5).Draw(t, "confidence"),
			next:       rapid.SampledFrom(append([]string{"", "ghost"}, names...)).Draw(t, "next"),
			escalate:   rapid.IntRange(0, 9).Draw(t, "escalate") == 0,
			fail:       rapid.IntRange(0, 19).Draw(t, "fail") == 0,
		}
	})
}

func scripted(step scriptedStep) Responder {
	return ResponderFunc(func(_ context.Context, s *ConversationState) (*ConversationState, error) {
		if step.fail {
			return nil, errors.New("scripted failure")
		}
		s.Status = step.status
		s.ResponseConfidence = step.confidence
		s.NextAgent = step.next
		s.NeedsEscalation = step.escalate
		s.AgentResponse = "reply"
		return s, nil
	})
}

// genWorld draws a registry of scripted responders and dispatch options.
func genWorld(t *rapid.T) (*Orchestrator, string) {
	names := []string{"r0", "r1", "r2", "r3"}
	count := rapid.IntRange(1, len(names)).Draw(t, "responders")
	names = names[:count]

	var manifest Manifest
	for _, name := range names {
		manifest = append(manifest, Entry(name, scripted(genStep(names).Draw(t, name)), TierFrontline, "x"))
	}
	reg, err := Bootstrap(zap.NewNop(), manifest...)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	opts := DefaultOptions()
	opts.MaxHops = rapid.IntRange(1, 12).Draw(t, "maxHops")
	opts.RepeatBound = rapid.IntRange(1, 3).Draw(t, "repeatBound")
	opts.ConfidenceFloor = rapid.Float64Range(0, 1).Draw(t, "floor")
	return NewOrchestrator(reg, opts), rapid.SampledFrom(names).Draw(t, "entry")
}

func TestProperty_TerminalStatesKeepTurnCount(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		o, entry := genWorld(rt)
		out := o.Dispatch(context.Background(), NewConversationState(DispatchRequest{CurrentMessage: "m", EntryAgent: entry}))

		if !out.Status.IsTerminal() {
			rt.Fatalf("dispatch returned non-terminal status %s", out.Status)
		}
		if out.TurnCount != len(out.AgentHistory) {
			rt.Fatalf("turn_count %d != len(agent_history) %d", out.TurnCount, len(out.AgentHistory))
		}
		if len(out.AgentHistory) > o.Options().MaxHops {
			rt.Fatalf("history %v exceeds hop ceiling %d", out.AgentHistory, o.Options().MaxHops)
		}
		if out.AgentResponse == "" {
			rt.Fatalf("terminal state without agent_response")
		}
		if out.TerminalReason == ReasonNone {
			rt.Fatalf("terminal state without reason")
		}
	})
}

func TestProperty_ConfidenceAlwaysInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reported := rapid.OneOf(
			rapid.Float64(),
			rapid.SampledFrom([]float64{math.NaN(), math.Inf(1), math.Inf(-1), -1e-9, 1 + 1e-9}),
		).Draw(rt, "reported")

		reg, err := Bootstrap(nil, Entry("r", reply(StatusResolved, reported, "", "x"), TierFrontline, "x"))
		if err != nil {
			rt.Fatalf("bootstrap: %v", err)
		}
		out := NewOrchestrator(reg, DefaultOptions()).
			Dispatch(context.Background(), NewConversationState(DispatchRequest{EntryAgent: "r"}))

		c := out.ResponseConfidence
		if math.IsNaN(c) || c < 0 || c > 1 {
			rt.Fatalf("confidence %v escaped [0,1] (reported %v)", c, reported)
		}
	})
}

func TestProperty_HopCeilingAlwaysEscalates(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxHops := rapid.IntRange(1, 8).Draw(rt, "maxHops")
		confidence := rapid.Float64Range(0, 1).Draw(rt, "confidence")

		// a chain of distinct responders longer than the ceiling
		var manifest Manifest
		for i := 0; i < 12; i++ {
			name := fmt.Sprintf("r%d", i)
			manifest = append(manifest, Entry(name,
				reply(StatusActive, confidence, fmt.Sprintf("r%d", i+1), "x"), TierFrontline, "x"))
		}
		reg, err := Bootstrap(nil, manifest...)
		if err != nil {
			rt.Fatalf("bootstrap: %v", err)
		}
		opts := DefaultOptions()
		opts.MaxHops = maxHops
		out := NewOrchestrator(reg, opts).
			Dispatch(context.Background(), NewConversationState(DispatchRequest{EntryAgent: "r0"}))

		if out.Status != StatusEscalated || out.TerminalReason != ReasonLoopGuardTripped {
			rt.Fatalf("got %s/%s, want ESCALATED/LoopGuardTripped", out.Status, out.TerminalReason)
		}
		if len(out.AgentHistory) != maxHops {
			rt.Fatalf("history length %d, want %d", len(out.AgentHistory), maxHops)
		}
	})
}

func TestProperty_DispatchIsDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		o, entry := genWorld(rt)
		initial := NewConversationState(DispatchRequest{ConversationID: "fixed", CurrentMessage: "m", EntryAgent: entry})

		first := o.Dispatch(context.Background(), initial)
		second := o.Dispatch(context.Background(), initial)

		if first.Status != second.Status || first.TerminalReason != second.TerminalReason {
			rt.Fatalf("status differs: %s/%s vs %s/%s", first.Status, first.TerminalReason, second.Status, second.TerminalReason)
		}
		if !slices.Equal(first.AgentHistory, second.AgentHistory) {
			rt.Fatalf("history differs: %v vs %v", first.AgentHistory, second.AgentHistory)
		}
	})
}

func TestProperty_TerminalDispatchIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	reg, err := Bootstrap(nil, Entry("r", reply(StatusActive, 0.9, "r", "x"), TierFrontline, "x"))
	require.NoError(t, err)
	o := NewOrchestrator(reg, DefaultOptions())

	properties.Property("dispatching a terminal state returns it unchanged", prop.ForAll(
		func(status Status, hops int, confidence float64, next string) bool {
			state := NewConversationState(DispatchRequest{ConversationID: "c", EntryAgent: next})
			for i := 0; i < hops; i++ {
				state.AgentHistory = append(state.AgentHistory, "r")
			}
			state.TurnCount = hops
			state.Status = status
			state.ResponseConfidence = confidence
			state.AgentResponse = "done"
			snapshot := state.Clone()

			out := o.Dispatch(context.Background(), state)
			again := o.Dispatch(context.Background(), out)
			return out == state && again == state &&
				out.Status == snapshot.Status &&
				out.TurnCount == snapshot.TurnCount &&
				len(out.AgentHistory) == len(snapshot.AgentHistory) &&
				out.ResponseConfidence == snapshot.ResponseConfidence &&
				out.NextAgent == snapshot.NextAgent
		},
		gen.OneConstOf(StatusResolved, StatusEscalated, StatusFailed),
		gen.IntRange(0, 10),
		gen.Float64Range(0, 1),
		gen.OneConstOf("", "r", "ghost"),
	))

	properties.TestingRun(t)
}
