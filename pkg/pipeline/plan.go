package pipeline

import (
	"fmt"
	"strings"

	"github.com/l7mp/hybridagg/pkg/expression"
)

// SegmentKind tells where a segment of a pipeline is evaluated.
type SegmentKind int

const (
	// NativeSegment is a contiguous run of stages executed by the database in one round.
	NativeSegment SegmentKind = iota
	// CustomSegment is a single stage that refers to a custom operator, evaluated locally.
	CustomSegment
)

func (k SegmentKind) String() string {
	switch k {
	case NativeSegment:
		return "native"
	case CustomSegment:
		return "custom"
	}
	return "unknown"
}

// Segment is a part of an execution plan. Every segment materializes its output into a
// checkpoint that serves as the input of the next segment.
type Segment struct {
	Kind SegmentKind
	// Start is the position of the first stage of the segment in the pipeline.
	Start  int
	Stages []Stage
}

func (s Segment) String() string {
	ss := make([]string, len(s.Stages))
	for i := range s.Stages {
		ss[i] = s.Stages[i].String()
	}
	return fmt.Sprintf("%s[%d]:[%s]", s.Kind, s.Start, strings.Join(ss, ","))
}

// Plan is the split of a pipeline into native runs and custom stages.
type Plan struct {
	Segments []Segment
}

// NewPlan splits the pipeline into segments: contiguous stages without custom operators are
// collected into a single native segment, and each stage with a custom operator forms its own
// custom segment. Custom stages must be $project or $addFields.
func NewPlan(p Pipeline, reg *expression.Registry) (*Plan, error) {
	plan := &Plan{Segments: []Segment{}}

	var native *Segment
	flush := func() {
		if native != nil {
			plan.Segments = append(plan.Segments, *native)
			native = nil
		}
	}

	for i, s := range p.Stages {
		if !s.IsCustom(reg) {
			if native == nil {
				native = &Segment{Kind: NativeSegment, Start: i}
			}
			native.Stages = append(native.Stages, s)
			continue
		}

		if !IsLocalStage(s.Op) {
			return nil, NewUnsupportedCustomStageError(s.Op)
		}

		flush()
		plan.Segments = append(plan.Segments, Segment{Kind: CustomSegment, Start: i, Stages: []Stage{s}})
	}
	flush()

	return plan, nil
}

// Checkpoints returns the number of checkpoints executing the plan creates.
func (p *Plan) Checkpoints() int {
	return len(p.Segments)
}

func (p *Plan) String() string {
	ss := make([]string, len(p.Segments))
	for i := range p.Segments {
		ss[i] = p.Segments[i].String()
	}
	return "plan:{" + strings.Join(ss, ",") + "}"
}
