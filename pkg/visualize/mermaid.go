package visualize

import (
	"fmt"

	"github.com/emicklei/dot"
)

// MermaidGenerator generates Mermaid flowchart diagrams.
type MermaidGenerator struct{}

// Generate creates a Mermaid flowchart from the graph using the dot library.
func (m *MermaidGenerator) Generate(g *Graph) string {
	mermaid := dot.MermaidFlowchart(buildGraph(g, mermaidStyle), dot.MermaidLeftToRight)

	// Wrap in markdown code block.
	return fmt.Sprintf("```mermaid\n%s\n```\n", mermaid)
}

// Generator renders a visualization graph.
type Generator interface {
	Generate(g *Graph) string
}

// NewGenerator returns the generator for a format: "dot" or "mermaid".
func NewGenerator(format string) (Generator, error) {
	switch format {
	case "dot":
		return &DotGenerator{}, nil
	case "mermaid":
		return &MermaidGenerator{}, nil
	}
	return nil, fmt.Errorf("unknown diagram format %q", format)
}
