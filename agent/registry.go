package agent

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Tier ranks responders from first contact to deep expertise.
type Tier string

const (
	TierFrontline  Tier = "frontline"
	TierSpecialist Tier = "specialist"
	TierExpert     Tier = "expert"
)

// ParseTier parses a tier name, case-insensitively.
func ParseTier(v string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(v))); t {
	case TierFrontline, TierSpecialist, TierExpert:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tier %q", v)
	}
}

// Registration is one responder's identity in the registry.
type Registration struct {
	Name         string
	Responder    Responder
	Tier         Tier
	Category     string
	Capabilities CapabilitySet
}

// Conflict records a duplicate registration that replaced an earlier entry.
type Conflict struct {
	Name             string
	PreviousTier     Tier
	PreviousCategory string
}

var (
	ErrRegistryBuilt = errors.New("registry already built")
	ErrEmptyName     = errors.New("responder name is required")
	ErrNilResponder  = errors.New("responder implementation is nil")
)

// RegistryBuilder collects registrations during start-up. It is not safe for
// concurrent use; Build freezes it into a Registry.
type RegistryBuilder struct {
	entries   map[string]Registration
	conflicts []Conflict
	built     bool
	logger    *zap.Logger
}

// NewRegistryBuilder creates an empty builder.
func NewRegistryBuilder(logger *zap.Logger) *RegistryBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryBuilder{
		entries: make(map[string]Registration),
		logger:  logger.With(zap.String("component", "registry")),
	}
}

// Register stores a responder under name. A duplicate name overwrites the
// previous entry and is logged as a conflict.
func (b *RegistryBuilder) Register(name string, r Responder, tier Tier, category string, caps ...Capability) error {
	if b.built {
		return ErrRegistryBuilt
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if r == nil {
		return fmt.Errorf("%w: %s", ErrNilResponder, name)
	}

	if prev, exists := b.entries[name]; exists {
		b.conflicts = append(b.conflicts, Conflict{
			Name:             name,
			PreviousTier:     prev.Tier,
			PreviousCategory: prev.Category,
		})
		b.logger.Warn("duplicate responder registration, overwriting",
			zap.String("name", name),
			zap.String("previous_tier", string(prev.Tier)),
			zap.String("previous_category", prev.Category),
			zap.String("tier", string(tier)),
			zap.String("category", category),
		)
	}

	set := NewCapabilitySet(caps...)
	b.entries[name] = Registration{
		Name:         name,
		Responder:    r,
		Tier:         tier,
		Category:     category,
		Capabilities: set,
	}
	b.logger.Info("responder registered",
		zap.String("name", name),
		zap.String("tier", string(tier)),
		zap.String("category", category),
		zap.Stringer("capabilities", set),
	)
	return nil
}

// MustRegister is Register for manifests that treat a bad entry as a
// programming error.
func (b *RegistryBuilder) MustRegister(name string, r Responder, tier Tier, category string, caps ...Capability) {
	if err := b.Register(name, r, tier, category, caps...); err != nil {
		panic(err)
	}
}

// Conflicts returns every duplicate registration seen so far.
func (b *RegistryBuilder) Conflicts() []Conflict {
	return slices.Clone(b.conflicts)
}

// Build freezes the builder. Further Register calls fail.
func (b *RegistryBuilder) Build() *Registry {
	b.built = true
	entries := make(map[string]Registration, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}
	names := make([]string, 0, len(entries))
	for k := range entries {
		names = append(names, k)
	}
	slices.Sort(names)
	return &Registry{entries: entries, names: names}
}

// Registry is the frozen responder catalog. It is never written after Build,
// so concurrent reads need no locking.
type Registry struct {
	entries map[string]Registration
	names   []string
}

// Lookup resolves a responder by name. A miss is reported by ok=false.
func (r *Registry) Lookup(name string) (Registration, bool) {
	if r == nil {
		return Registration{}, false
	}
	reg, ok := r.entries[name]
	return reg, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.names)
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// ListByTier returns the registrations of one tier, sorted by name.
func (r *Registry) ListByTier(tier Tier) []Registration {
	return r.filter(func(reg Registration) bool { return reg.Tier == tier })
}

// ListByCategory returns the registrations of one category, sorted by name.
func (r *Registry) ListByCategory(category string) []Registration {
	return r.filter(func(reg Registration) bool { return reg.Category == category })
}

func (r *Registry) filter(keep func(Registration) bool) []Registration {
	var out []Registration
	for _, name := range r.Names() {
		if reg := r.entries[name]; keep(reg) {
			out = append(out, reg)
		}
	}
	return out
}

// RegisterFunc is one entry of a start-up manifest.
type RegisterFunc func(b *RegistryBuilder) error

// Manifest is the ordered list of registration functions run at start-up.
type Manifest []RegisterFunc

// Bootstrap runs every manifest entry exactly once and returns the frozen
// registry. The first failing entry aborts the bootstrap.
func Bootstrap(logger *zap.Logger, manifest ...RegisterFunc) (*Registry, error) {
	b := NewRegistryBuilder(logger)
	for i, fn := range manifest {
		if fn == nil {
			continue
		}
		if err := fn(b); err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i, err)
		}
	}
	reg := b.Build()
	b.logger.Info("registry built",
		zap.Int("responders", reg.Len()),
		zap.Int("conflicts", len(b.conflicts)),
	)
	return reg, nil
}

// Entry is a convenience RegisterFunc for a single responder.
func Entry(name string, r Responder, tier Tier, category string, caps ...Capability) RegisterFunc {
	return func(b *RegistryBuilder) error {
		return b.Register(name, r, tier, category, caps...)
	}
}
