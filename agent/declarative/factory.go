package declarative

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/agent"
	"github.com/BaSui01/switchboard/llm"
)

// ResponderFactory turns definitions into registered responders.
type ResponderFactory struct {
	generator llm.Generator
	logger    *zap.Logger
}

// NewResponderFactory creates a factory. generator phrases every generated
// responder's reply.
func NewResponderFactory(generator llm.Generator, logger *zap.Logger) *ResponderFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponderFactory{
		generator: generator,
		logger:    logger.With(zap.String("component", "declarative")),
	}
}

// Validate checks that required fields are present and constraints are met.
func (f *ResponderFactory) Validate(def *ResponderDefinition) error {
	if def == nil {
		return fmt.Errorf("responder definition is nil")
	}
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("responder definition: name is required")
	}
	var errs []error
	if _, err := agent.ParseTier(def.Tier); err != nil {
		errs = append(errs, err)
	}
	if def.Category == "" {
		errs = append(errs, fmt.Errorf("category is required"))
	}
	if _, err := agent.ParseCapabilitySet(def.Capabilities); err != nil {
		errs = append(errs, err)
	}
	if def.Confidence < 0 || def.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence must be between 0 and 1, got %g", def.Confidence))
	}
	if c := def.KBMissConfidence; c != nil && (*c < 0 || *c > 1) {
		errs = append(errs, fmt.Errorf("kb_miss_confidence must be between 0 and 1, got %g", *c))
	}
	if def.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be non-negative, got %d", def.MaxTokens))
	}
	switch def.kind() {
	case KindGenerated:
		if f.generator == nil {
			errs = append(errs, fmt.Errorf("kind %q needs a text generator", KindGenerated))
		}
	case KindTriage:
		if len(def.Routes) == 0 && def.DefaultRoute == "" {
			errs = append(errs, fmt.Errorf("triage needs routes or a default_route"))
		}
		for i, rt := range def.Routes {
			if rt.Responder == "" {
				errs = append(errs, fmt.Errorf("route %d: responder is required", i))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("unknown kind %q", def.Kind))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("responder definition %s: %w", def.Name, err)
	}
	return nil
}

// Build validates def and creates its responder.
func (f *ResponderFactory) Build(def *ResponderDefinition) (agent.Responder, error) {
	if err := f.Validate(def); err != nil {
		return nil, err
	}
	if def.kind() == KindTriage {
		return &TriageResponder{def: *def}, nil
	}
	caps, _ := agent.ParseCapabilitySet(def.Capabilities)
	return &GeneratedResponder{def: *def, caps: caps, generator: f.generator}, nil
}

// Register returns the manifest entry that builds and registers def.
func (f *ResponderFactory) Register(def ResponderDefinition) agent.RegisterFunc {
	return func(b *agent.RegistryBuilder) error {
		r, err := f.Build(&def)
		if err != nil {
			return err
		}
		tier, _ := agent.ParseTier(def.Tier)
		caps, _ := agent.ParseCapabilitySet(def.Capabilities)
		f.logger.Debug("built responder from definition",
			zap.String("name", def.Name),
			zap.String("kind", string(def.kind())),
			zap.Stringer("capabilities", caps))
		return b.Register(def.Name, r, tier, def.Category, caps.List()...)
	}
}

// Manifest converts every definition into an ordered agent.Manifest.
// References to responders the manifest does not define are logged, not
// rejected: at dispatch time they escalate as lookup failures.
func (f *ResponderFactory) Manifest(m *ManifestDefinition) agent.Manifest {
	if m == nil {
		return nil
	}
	defined := make(map[string]bool, len(m.Responders))
	for _, def := range m.Responders {
		defined[strings.TrimSpace(def.Name)] = true
	}
	out := make(agent.Manifest, 0, len(m.Responders))
	for _, def := range m.Responders {
		for _, ref := range references(def) {
			if !defined[ref] {
				f.logger.Warn("responder references an undefined responder",
					zap.String("name", def.Name),
					zap.String("reference", ref))
			}
		}
		out = append(out, f.Register(def))
	}
	if m.EntryAgent != "" && !defined[m.EntryAgent] {
		f.logger.Warn("entry agent is not defined in the manifest", zap.String("entry_agent", m.EntryAgent))
	}
	return out
}

func references(def ResponderDefinition) []string {
	var refs []string
	if def.NextAgent != "" {
		refs = append(refs, def.NextAgent)
	}
	for _, rt := range def.Routes {
		refs = append(refs, rt.Responder)
	}
	if def.DefaultRoute != "" {
		refs = append(refs, def.DefaultRoute)
	}
	return refs
}
