package declarative

import (
	"context"
	"fmt"
	"regexp"

	"github.com/BaSui01/switchboard/agent"
)

// RegexpExtractor is an agent.EntityExtractor driven by manifest rules.
type RegexpExtractor struct {
	rules []compiledRule
}

type compiledRule struct {
	name string
	re   *regexp.Regexp
}

var _ agent.EntityExtractor = (*RegexpExtractor)(nil)

// NewRegexpExtractor compiles rules. Patterns are case-insensitive.
func NewRegexpExtractor(rules []EntityRule) (*RegexpExtractor, error) {
	x := &RegexpExtractor{}
	for _, rule := range rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("entity rule: name is required")
		}
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("entity rule %s: %w", rule.Name, err)
		}
		x.rules = append(x.rules, compiledRule{name: rule.Name, re: re})
	}
	return x, nil
}

// Extract returns the first match of every rule. Later rules for the same
// name do not override earlier matches.
func (x *RegexpExtractor) Extract(_ context.Context, message string) (map[string]any, error) {
	out := make(map[string]any)
	for _, rule := range x.rules {
		if _, seen := out[rule.name]; seen {
			continue
		}
		m := rule.re.FindStringSubmatch(message)
		switch {
		case m == nil:
		case len(m) > 1:
			out[rule.name] = m[1]
		default:
			out[rule.name] = m[0]
		}
	}
	return out, nil
}
