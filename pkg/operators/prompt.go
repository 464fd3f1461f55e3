// Package operators contains custom aggregation operators.
package operators

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/l7mp/hybridagg/pkg/document"
	"github.com/l7mp/hybridagg/pkg/expression"
	"github.com/l7mp/hybridagg/pkg/util"
)

// PromptOp is the name the prompt operator is usually registered under.
const PromptOp = "$prompt"

var _ expression.CustomOperator = &Prompt{}

// Prompt is a custom operator that asks a text-generation model about a document field.
//
// Usage: {"$prompt": [<field>, <prompt text>]}. The field is a dotted path, optionally with a
// leading "$". The result is the generated text, or nil if the field is missing or the
// generator fails.
type Prompt struct {
	generator Generator
	log       logr.Logger
}

// NewPrompt creates a prompt operator on top of a generator.
func NewPrompt(g Generator, log logr.Logger) *Prompt {
	return &Prompt{generator: g, log: log}
}

func (p *Prompt) Evaluate(ctx context.Context, doc document.Document, arg any) (any, error) {
	args, err := expression.AsList(arg)
	if err != nil || len(args) != 2 {
		return nil, fmt.Errorf("%w: %s requires two arguments: field name and prompt text, got %s",
			expression.ErrOperatorArgument, PromptOp, util.Stringify(arg))
	}

	field, err := expression.AsString(args[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s field name: %s", expression.ErrOperatorArgument, PromptOp, err.Error())
	}
	field = strings.TrimPrefix(field, "$")
	if field == "" {
		return nil, fmt.Errorf("%w: %s field name must not be empty", expression.ErrOperatorArgument, PromptOp)
	}

	text, err := expression.AsString(args[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s prompt text: %s", expression.ErrOperatorArgument, PromptOp, err.Error())
	}

	value := document.Resolve(doc, field)
	if value == nil {
		return nil, nil
	}

	res, err := p.generator.Generate(ctx, BuildPrompt(text, field, value, doc))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		p.log.Error(err, "text generation failed, ignoring", "field", field)
		return nil, nil
	}

	p.log.V(8).Info("prompt ready", "field", field, "result", util.Truncate(res, 64))

	return res, nil
}

// BuildPrompt renders the message sent to the generator.
func BuildPrompt(text, field string, value any, doc document.Document) string {
	var b strings.Builder
	b.WriteString("[prompt]\n")
	b.WriteString(text)
	b.WriteString("\n[/prompt]\n[context]\nfield: ")
	b.WriteString(field)
	b.WriteString("\nvalue:\n")
	b.WriteString(expression.Stringify(value))
	b.WriteString("\n[full document]\n")
	b.WriteString(util.Stringify(doc))
	b.WriteString("\n[/full document]\n[/context]")
	return b.String()
}
