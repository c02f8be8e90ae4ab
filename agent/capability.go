package agent

import (
	"fmt"
	"strings"
)

// Capability is one thing a responder declares it needs injected before it runs.
type Capability uint8

const (
	CapContextAware     Capability = 1 << iota // rendered conversation history
	CapKBSearch                                // knowledge-base results for the current message
	CapEntityExtraction                        // entities extracted from the current message
	CapMultiTurn                               // the transcript of earlier messages
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapContextAware, "context_aware"},
	{CapKBSearch, "kb_search"},
	{CapEntityExtraction, "entity_extraction"},
	{CapMultiTurn, "multi_turn"},
}

func (c Capability) String() string {
	for _, n := range capabilityNames {
		if n.cap == c {
			return n.name
		}
	}
	return fmt.Sprintf("capability(%d)", uint8(c))
}

// ParseCapability parses a capability name such as "kb_search".
// Hyphens and case are ignored.
func ParseCapability(v string) (Capability, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "-", "_")
	for _, n := range capabilityNames {
		if n.name == key {
			return n.cap, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", v)
}

// CapabilitySet is an immutable set of capabilities.
type CapabilitySet uint8

// NewCapabilitySet builds a set from individual capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= CapabilitySet(c)
	}
	return s
}

// ParseCapabilitySet parses a list of capability names.
func ParseCapabilitySet(names []string) (CapabilitySet, error) {
	var s CapabilitySet
	for _, n := range names {
		c, err := ParseCapability(n)
		if err != nil {
			return 0, err
		}
		s |= CapabilitySet(c)
	}
	return s, nil
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

// List returns the capabilities in declaration order.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(capabilityNames))
	for _, n := range capabilityNames {
		if s.Has(n.cap) {
			out = append(out, n.cap)
		}
	}
	return out
}

// Names returns the capability names in declaration order.
func (s CapabilitySet) Names() []string {
	caps := s.List()
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = c.String()
	}
	return out
}

func (s CapabilitySet) String() string {
	return "[" + strings.Join(s.Names(), ",") + "]"
}
