package flow

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/G-Research/batchproc/internal/fanout"
)

// FlowSpec describes one flow run. Input comes either inline (Data or Text) or from SourceUrl.
type FlowSpec struct {
	SourceUrl   string                 `yaml:"source_url"`
	Data        *fanout.OrderedMap     `yaml:"-"`
	Text        string                 `yaml:"text"`
	Options     map[string]interface{} `yaml:"options"`
	Destination string                 `yaml:"destination"`
}

type flowSpecFile struct {
	FlowSpec `yaml:",inline"`
	Data     yaml.Node `yaml:"data"`
}

func LoadFlowSpec(path string) (*FlowSpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ParseFlowSpec(content)
}

// ParseFlowSpec decodes a YAML flow spec. Mappings under data keep their order.
func ParseFlowSpec(content []byte) (*FlowSpec, error) {
	file := flowSpecFile{}
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, errors.Wrap(err, "parsing flow spec")
	}
	spec := file.FlowSpec
	if file.Data.Kind != 0 {
		data, err := fromYaml(&file.Data)
		if err != nil {
			return nil, err
		}
		mapping, ok := data.(*fanout.OrderedMap)
		if !ok && data != nil {
			return nil, errors.Errorf("flow spec data must be a mapping, line %d", file.Data.Line)
		}
		spec.Data = mapping
	}
	return &spec, nil
}

func fromYaml(node *yaml.Node) (interface{}, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return fromYaml(node.Content[0])
	case yaml.AliasNode:
		return fromYaml(node.Alias)
	case yaml.MappingNode:
		m := fanout.NewOrderedMap()
		for i := 0; i+1 < len(node.Content); i += 2 {
			value, err := fromYaml(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Set(node.Content[i].Value, value)
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(node.Content))
		for _, child := range node.Content {
			value, err := fromYaml(child)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil
	}

	var value interface{}
	if err := node.Decode(&value); err != nil {
		return nil, errors.Wrapf(err, "decoding value at line %d", node.Line)
	}
	if i, ok := value.(int); ok {
		return int64(i), nil
	}
	return value, nil
}
