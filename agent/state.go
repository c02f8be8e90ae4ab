package agent

import (
	"fmt"
	"strings"

	"github.com/BaSui01/switchboard/types"
)

// Status is the lifecycle status of a conversation within one dispatch cycle.
type Status string

const (
	StatusActive    Status = "ACTIVE"    // eligible for further dispatch
	StatusResolved  Status = "RESOLVED"  // a responder produced a final answer
	StatusEscalated Status = "ESCALATED" // handed to a human
	StatusFailed    Status = "FAILED"    // a hop raised an unrecoverable error
)

// validTransitions lists the legal status changes. Terminal states have none.
var validTransitions = map[Status][]Status{
	StatusActive:    {StatusResolved, StatusEscalated, StatusFailed},
	StatusResolved:  {},
	StatusEscalated: {},
	StatusFailed:    {},
}

// IsTerminal reports whether no further dispatch may happen from s.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusEscalated || s == StatusFailed
}

// IsValid reports whether s is one of the four known statuses.
func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s Status) String() string { return string(s) }

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown conversation status %q", v)
	}
	return s, nil
}

// CanTransition checks whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned when a terminal state would be left.
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// TerminalReason records why a dispatch cycle stopped.
type TerminalReason string

const (
	ReasonNone               TerminalReason = ""
	ReasonResolved           TerminalReason = "Resolved"
	ReasonLookupFailure      TerminalReason = "LookupFailure"
	ReasonLoopGuardTripped   TerminalReason = "LoopGuardTripped"
	ReasonExplicitFlag       TerminalReason = "ExplicitFlag"
	ReasonLowConfidence      TerminalReason = "LowConfidence"
	ReasonGenerationFailure  TerminalReason = "GenerationFailure"
	ReasonCapabilityMismatch TerminalReason = "CapabilityMismatch"
	ReasonValidationFailure  TerminalReason = "ValidationFailure"
	ReasonCancelled          TerminalReason = "Cancelled"
)

// ErrorCode maps a reason onto the shared error vocabulary.
func (r TerminalReason) ErrorCode() types.ErrorCode {
	switch r {
	case ReasonLookupFailure:
		return types.ErrLookupFailure
	case ReasonLoopGuardTripped:
		return types.ErrLoopGuardTripped
	case ReasonGenerationFailure:
		return types.ErrGenerationFailure
	case ReasonCapabilityMismatch:
		return types.ErrCapabilityMismatch
	case ReasonValidationFailure:
		return types.ErrValidationFailure
	default:
		return ""
	}
}

// reasonForError picks the terminal reason for a failed hop.
func reasonForError(err error) TerminalReason {
	switch types.GetErrorCode(err) {
	case types.ErrCapabilityMismatch:
		return ReasonCapabilityMismatch
	case types.ErrValidationFailure:
		return ReasonValidationFailure
	default:
		return ReasonGenerationFailure
	}
}
