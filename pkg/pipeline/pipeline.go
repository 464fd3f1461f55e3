package pipeline

import (
	"bytes"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/json"
)

// Pipeline is an ordered sequence of aggregation stages.
//
// The pipeline can be specified as:
//   - a single stage: {"$match": ...}
//   - a list of stages: [{"$match": ...}, {"$project": ...}]
type Pipeline struct {
	Stages []Stage
}

// New creates a pipeline from a list of stages. Each stage is either a Stage or a mapping
// accepted by NewStage.
func New(stages ...any) (Pipeline, error) {
	p := Pipeline{Stages: make([]Stage, 0, len(stages))}
	for i, raw := range stages {
		s, err := NewStage(raw)
		if err != nil {
			return Pipeline{}, fmt.Errorf("stage %d: %w", i, err)
		}
		p.Stages = append(p.Stages, s)
	}
	return p, nil
}

// Parse decodes a pipeline from JSON or YAML. JSON input may use MongoDB extended JSON notation
// (e.g., {"$oid": ...}); mapping key order is preserved in both formats.
func Parse(data []byte) (Pipeline, error) {
	j := bytes.TrimSpace(data)
	if len(j) == 0 || bytes.Equal(j, []byte("null")) {
		return Pipeline{}, nil
	}

	// flow style YAML that is not valid JSON falls through to the YAML decoder
	if j[0] == '[' || j[0] == '{' {
		if v, err := decodeExtJSON(j); err == nil {
			return fromValue(v, j)
		}
	}

	// YAML is rewritten to JSON in document order
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return Pipeline{}, NewInvalidStageError(string(data), err.Error())
	}

	var buf bytes.Buffer
	if err := writeJSON(&buf, &node); err != nil {
		return Pipeline{}, NewInvalidStageError(string(data), err.Error())
	}

	j = bytes.TrimSpace(buf.Bytes())
	if len(j) == 0 || bytes.Equal(j, []byte("null")) {
		return Pipeline{}, nil
	}

	v, err := decodeExtJSON(j)
	if err != nil {
		return Pipeline{}, NewInvalidStageError(string(j), err.Error())
	}

	return fromValue(v, j)
}

func decodeExtJSON(j []byte) (any, error) {
	// extended JSON requires a document at the top level
	var wrapper struct {
		Pipeline any `bson:"pipeline"`
	}
	buf := make([]byte, 0, len(j)+len(`{"pipeline":}`))
	buf = append(buf, `{"pipeline":`...)
	buf = append(buf, j...)
	buf = append(buf, '}')
	if err := bson.UnmarshalExtJSON(buf, false, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Pipeline, nil
}

func fromValue(v any, j []byte) (Pipeline, error) {
	switch v := v.(type) {
	case bson.A:
		return New(v...)
	case bson.D:
		return New(v)
	default:
		return Pipeline{}, NewInvalidStageError(string(j), "pipeline must be a stage or a list of stages")
	}
}

// writeJSON writes a YAML node tree as JSON, keeping mappings in document order.
func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case 0:
		return nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return writeJSON(buf, n.Content[0])
	case yaml.AliasNode:
		return writeJSON(buf, n.Alias)
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}

// UnmarshalJSON handles both single stages and lists of stages.
func (p *Pipeline) UnmarshalJSON(data []byte) error {
	ret, err := Parse(data)
	if err != nil {
		return err
	}
	*p = ret
	return nil
}

// MarshalJSON encodes the pipeline as a list of stages.
func (p Pipeline) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('[')
	for i, s := range p.Stages {
		if i > 0 {
			b.WriteByte(',')
		}
		js, err := s.MarshalJSON()
		if err != nil {
			return nil, err
		}
		b.Write(js)
	}
	b.WriteByte(']')
	return b.Bytes(), nil
}

// Raw returns the stages in the form they were created from, ready to be sent to the database.
func (p Pipeline) Raw() []any {
	ret := make([]any, len(p.Stages))
	for i := range p.Stages {
		ret[i] = p.Stages[i].Raw()
	}
	return ret
}

// Len returns the number of stages.
func (p Pipeline) Len() int { return len(p.Stages) }

func (p Pipeline) String() string {
	b, err := p.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("pipeline:%d stages", len(p.Stages))
	}
	return string(b)
}
