// Package trace replays render scenarios described in YAML against an
// in-memory host and records the host operations of every step.
package trace

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/AnatoleLucet/loom"
)

// Scenario is a sequence of renders applied to one root.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Concurrent renders through scheduled, interruptible passes.
	Concurrent bool `yaml:"concurrent,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step is either a render of a new tree or an unmount.
type Step struct {
	Render  *NodeSpec `yaml:"render,omitempty"`
	Unmount bool      `yaml:"unmount,omitempty"`
}

func (s Step) kind() string {
	if s.Unmount {
		return "unmount"
	}
	return "render"
}

// NodeSpec describes a host element, or a text node when only Text is set.
type NodeSpec struct {
	Tag      string         `yaml:"tag,omitempty"`
	Key      string         `yaml:"key,omitempty"`
	Text     string         `yaml:"text,omitempty"`
	Props    map[string]any `yaml:"props,omitempty"`
	Children []NodeSpec     `yaml:"children,omitempty"`
}

// Element builds the element tree described by n.
func (n NodeSpec) Element() *loom.Element {
	var el *loom.Element
	if n.Tag == "" {
		el = loom.Text(n.Text)
	} else {
		children := make([]*loom.Element, len(n.Children))
		for i, c := range n.Children {
			children[i] = c.Element()
		}
		el = loom.H(n.Tag, loom.Props(n.Props), children...)
	}

	if n.Key != "" {
		el = loom.Keyed(n.Key, el)
	}
	return el
}

func (n NodeSpec) validate(path string) error {
	if n.Tag == "" {
		if len(n.Children) > 0 || len(n.Props) > 0 {
			return errors.Errorf("%s: a text node has no props or children", path)
		}
		return nil
	}
	if n.Text != "" {
		return errors.Errorf("%s: element %q has text, use a text child", path, n.Tag)
	}
	for i, c := range n.Children {
		if err := c.validate(path + "/" + n.Tag + "[" + itoa(i) + "]"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("scenario name is required")
	}
	if len(s.Steps) == 0 {
		return errors.Errorf("scenario %s has no steps", s.Name)
	}
	for i, step := range s.Steps {
		switch {
		case step.Render != nil && step.Unmount:
			return errors.Errorf("step %d: render and unmount are exclusive", i+1)
		case step.Render == nil && !step.Unmount:
			return errors.Errorf("step %d: nothing to do", i+1)
		case step.Render != nil:
			if err := step.Render.validate("step " + itoa(i+1)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ParseScenario decodes and validates a scenario. Unknown fields are
// rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrap(err, "decode scenario")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read scenario %s", path)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return s, nil
}
