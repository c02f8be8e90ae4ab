package declarative

// Kind selects the responder implementation built from a definition.
type Kind string

const (
	// KindGenerated phrases a reply with the text generator.
	KindGenerated Kind = "generated"
	// KindTriage routes by keyword or extracted intent and never replies.
	KindTriage Kind = "triage"
)

// ManifestDefinition is a declarative responder manifest.
// This struct is designed to be deserialized from YAML or JSON files.
type ManifestDefinition struct {
	// EntryAgent is the responder new conversations start with.
	EntryAgent string `yaml:"entry_agent,omitempty" json:"entry_agent,omitempty"`

	Responders []ResponderDefinition `yaml:"responders" json:"responders"`

	// Entities feeds the regexp entity extractor.
	Entities []EntityRule `yaml:"entities,omitempty" json:"entities,omitempty"`
}

// ResponderDefinition is one responder in a manifest.
type ResponderDefinition struct {
	// Identity
	Name        string `yaml:"name" json:"name"`
	Kind        Kind   `yaml:"kind,omitempty" json:"kind,omitempty"` // "generated" (default) or "triage"
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Registry metadata
	Tier         string   `yaml:"tier" json:"tier"`
	Category     string   `yaml:"category" json:"category"`
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`

	// Prompt
	SystemPrompt string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`

	// Confidence is the self-assessed confidence reported with every reply.
	Confidence float64 `yaml:"confidence,omitempty" json:"confidence,omitempty"`

	// KBMissConfidence replaces Confidence when a kb_search responder got no
	// knowledge-base results. Nil keeps Confidence.
	KBMissConfidence *float64 `yaml:"kb_miss_confidence,omitempty" json:"kb_miss_confidence,omitempty"`

	// NextAgent hands the conversation on after this responder replies.
	NextAgent string `yaml:"next_agent,omitempty" json:"next_agent,omitempty"`

	// EscalateKeywords raise the explicit escalation flag when the message
	// contains any of them.
	EscalateKeywords []string `yaml:"escalate_keywords,omitempty" json:"escalate_keywords,omitempty"`

	// Resolve reports RESOLVED when there is no NextAgent. False leaves the
	// status ACTIVE and lets the engine resolve implicitly. Defaults to true.
	Resolve *bool `yaml:"resolve,omitempty" json:"resolve,omitempty"`

	// Triage only.
	Routes       []Route `yaml:"routes,omitempty" json:"routes,omitempty"`
	DefaultRoute string  `yaml:"default_route,omitempty" json:"default_route,omitempty"`

	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature float32 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Route sends matching messages to Responder. A message matches when it
// contains any keyword or its extracted "intent" entity is one of Intents.
type Route struct {
	Responder string   `yaml:"responder" json:"responder"`
	Keywords  []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Intents   []string `yaml:"intents,omitempty" json:"intents,omitempty"`
}

// EntityRule extracts Name from the first match of Pattern. With a capture
// group the first group is the value, otherwise the whole match.
type EntityRule struct {
	Name    string `yaml:"name" json:"name"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

func (d *ResponderDefinition) kind() Kind {
	if d.Kind == "" {
		return KindGenerated
	}
	return d.Kind
}

func (d *ResponderDefinition) resolves() bool {
	return d.Resolve == nil || *d.Resolve
}
