package llm

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
)

// DefaultReplyTemplate phrases a reply without a model.
const DefaultReplyTemplate = `Thanks for your message about "{{.UserPrompt}}". We're looking into it.`

// TemplateGenerator renders replies from a text/template with the request as
// data. It never calls the network.
type TemplateGenerator struct {
	tmpl *template.Template
}

// NewTemplateGenerator parses text. An empty text uses DefaultReplyTemplate.
func NewTemplateGenerator(text string) (*TemplateGenerator, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultReplyTemplate
	}
	tmpl, err := template.New("reply").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse reply template: %w", err)
	}
	return &TemplateGenerator{tmpl: tmpl}, nil
}

func (g *TemplateGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Code: ErrUpstreamTimeout, Message: err.Error(), Cause: err}
	}
	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, req); err != nil {
		return "", &Error{Code: ErrInvalidRequest, Message: "render reply template: " + err.Error(), Cause: err}
	}
	return strings.TrimSpace(buf.String()), nil
}
