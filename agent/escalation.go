package agent

import (
	"fmt"
	"time"
)

// EscalationRecord is what the human-escalation queue receives.
type EscalationRecord struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Reason         TerminalReason `json:"reason"`
	LastResponder  string         `json:"last_responder,omitempty"`
	Confidence     float64        `json:"confidence"`
	Message        string         `json:"message,omitempty"`
	Detail         string         `json:"detail,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Verdict is the outcome of arbitrating one hop.
type Verdict struct {
	Status Status
	Reason TerminalReason
	Detail string
}

// Continue reports whether the dispatch loop keeps going.
func (v Verdict) Continue() bool { return v.Status == StatusActive }

// EscalationPolicy decides, after every hop, whether the responder's own
// routing decision stands.
type EscalationPolicy struct {
	ConfidenceFloor float64
	Guard           LoopGuard
}

// NewEscalationPolicy builds the policy from the dispatch options.
func NewEscalationPolicy(opts Options) EscalationPolicy {
	return EscalationPolicy{ConfidenceFloor: opts.ConfidenceFloor, Guard: NewLoopGuard(opts)}
}

// Arbitrate applies the policy to a merged state. reported is the status the
// responder asked for; s.Status is still ACTIVE. First match wins:
//
//  1. the loop guard trips on the requested next responder
//  2. the responder set NeedsEscalation or reported ESCALATED
//  3. the outcome would be RESOLVED but confidence is below the floor
//  4. otherwise the responder's decision is honored
func (p EscalationPolicy) Arbitrate(s *ConversationState, reported Status) Verdict {
	if s.NextAgent != "" && reported != StatusResolved {
		if tripped, detail := p.Guard.Check(s.AgentHistory, s.NextAgent); tripped {
			return Verdict{Status: StatusEscalated, Reason: ReasonLoopGuardTripped, Detail: detail}
		}
	}

	if s.NeedsEscalation || reported == StatusEscalated {
		return Verdict{Status: StatusEscalated, Reason: ReasonExplicitFlag,
			Detail: fmt.Sprintf("escalation requested by %s", s.LastResponder())}
	}

	wouldResolve := reported == StatusResolved || (reported == StatusActive && s.NextAgent == "")
	if wouldResolve && s.ResponseConfidence < p.ConfidenceFloor {
		return Verdict{Status: StatusEscalated, Reason: ReasonLowConfidence,
			Detail: fmt.Sprintf("confidence %.2f below floor %.2f", s.ResponseConfidence, p.ConfidenceFloor)}
	}

	switch {
	case reported == StatusFailed:
		return Verdict{Status: StatusFailed, Reason: ReasonGenerationFailure,
			Detail: fmt.Sprintf("%s reported failure", s.LastResponder())}
	case wouldResolve:
		return Verdict{Status: StatusResolved, Reason: ReasonResolved}
	default:
		return Verdict{Status: StatusActive}
	}
}
