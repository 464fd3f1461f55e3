// Package visualize renders aggregation execution plans as diagrams.
package visualize

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"

	"github.com/l7mp/hybridagg/pkg/expression"
	"github.com/l7mp/hybridagg/pkg/pipeline"
	"github.com/l7mp/hybridagg/pkg/util"
)

// Graph represents the visualization graph of an execution plan.
type Graph struct {
	// Source is the name of the source collection.
	Source string
	Steps  []Step
}

// Step is a single segment of the execution plan.
type Step struct {
	Kind pipeline.SegmentKind
	// Start is the position of the first stage of the step in the pipeline.
	Start int
	// Stages lists the stage operators, e.g., "$match".
	Stages []string
	// Operators lists the custom operators the step evaluates locally.
	Operators []string
}

// Label returns the display label of a step, e.g., "custom: $project [$prompt]".
func (s Step) Label() string {
	label := fmt.Sprintf("%s: %s", s.Kind, strings.Join(s.Stages, " -> "))
	if len(s.Operators) > 0 {
		label += " [" + strings.Join(s.Operators, ",") + "]"
	}
	return label
}

// BuildGraph constructs a visualization graph from an execution plan.
func BuildGraph(source string, plan *pipeline.Plan, reg *expression.Registry) *Graph {
	g := &Graph{
		Source: source,
		Steps:  make([]Step, 0, len(plan.Segments)),
	}

	for _, seg := range plan.Segments {
		step := Step{
			Kind:      seg.Kind,
			Start:     seg.Start,
			Stages:    util.Map(func(s pipeline.Stage) string { return s.Op }, seg.Stages),
			Operators: []string{},
		}
		if seg.Kind == pipeline.CustomSegment {
			step.Operators = expression.CustomOperatorsIn(seg.Stages[0].Raw(), reg)
		}
		g.Steps = append(g.Steps, step)
	}

	return g
}

// nodeStyle holds the renderer specific node attributes.
type nodeStyle struct {
	collection, native, custom map[string]any
}

var dotStyle = nodeStyle{
	collection: map[string]any{"shape": "cylinder", "style": "filled", "fillcolor": "lightyellow"},
	native:     map[string]any{"shape": "box", "style": "filled,rounded", "fillcolor": "lightcyan"},
	custom:     map[string]any{"shape": "box", "style": "filled,rounded", "fillcolor": "lightpink"},
}

// Mermaid shapes must be given as the shapes of the dot library.
var mermaidStyle = nodeStyle{
	collection: map[string]any{"shape": dot.MermaidShapeCylinder},
	native:     map[string]any{"style": "fill:#e0ffff"},
	custom:     map[string]any{"shape": dot.MermaidShapeSubroutine, "style": "fill:#ffb6c1"},
}

// BuildDotGraph creates a Graphviz styled dot.Graph from the visualization graph.
func BuildDotGraph(g *Graph) *dot.Graph {
	return buildGraph(g, dotStyle)
}

func buildGraph(g *Graph, style nodeStyle) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")
	graph.Attr("label", "aggregate: "+g.Source)
	graph.Attr("labelloc", "t")
	graph.Attr("fontsize", "16")

	node := func(id, label string, attrs map[string]any) dot.Node {
		n := graph.Node(id).Attr("label", label)
		for k, v := range attrs {
			n.Attr(k, v)
		}
		return n
	}
	edge := func(from, to dot.Node, label string) {
		graph.Edge(from, to).
			Attr("label", label).
			Attr("fontname", "helvetica").
			Attr("fontsize", "10")
	}

	prev := node("source", g.Source, style.collection)
	for i, step := range g.Steps {
		attrs, in, out := style.native, "aggregate", "$out"
		if step.Kind == pipeline.CustomSegment {
			attrs, in, out = style.custom, "find", "insert"
		}

		n := node(fmt.Sprintf("step-%d", i+1), step.Label(), attrs)
		edge(prev, n, in)

		cp := node(fmt.Sprintf("checkpoint-%d", i+1), fmt.Sprintf("checkpoint %d", i+1), style.collection)
		edge(n, cp, out)
		prev = cp
	}

	result := node("result", "result", nil)
	edge(prev, result, "find")

	return graph
}
