package statemachine

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the file form of a Machine.
type Definition struct {
	Version     string       `yaml:"version"`
	Default     string       `yaml:"default,omitempty"`
	Initial     string       `yaml:"initial,omitempty"`
	States      []State      `yaml:"states"`
	Transitions []Transition `yaml:"transitions,omitempty"`
}

// UnmarshalYAML fills fields missing from the document with NewState defaults.
func (s *State) UnmarshalYAML(node *yaml.Node) error {
	type plain State
	p := plain(NewState("", ""))
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = State(p)
	return nil
}

// Build validates def and creates a Machine from it. The machine starts in
// Initial, or in Default when Initial is empty.
func (def Definition) Build(log *slog.Logger) (*Machine, error) {
	m := New(log)

	seen := make(map[string]bool, len(def.States))
	for _, s := range def.States {
		if s.Name == "" {
			return nil, fmt.Errorf("state without a name")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate state %q", s.Name)
		}
		seen[s.Name] = true
		m.AddState(s)
	}

	for i, t := range def.Transitions {
		for _, name := range []string{t.From, t.To} {
			if !seen[name] {
				return nil, fmt.Errorf("transition %d: %w: %q", i, ErrUnknownState, name)
			}
		}
		switch t.Mode {
		case "", Equals, NotEquals, Greater, Less:
		default:
			return nil, fmt.Errorf("transition %d: unknown mode %q", i, t.Mode)
		}
		m.AddTransition(t)
	}

	if def.Default != "" {
		if !seen[def.Default] {
			return nil, fmt.Errorf("default: %w: %q", ErrUnknownState, def.Default)
		}
		m.SetDefaultState(def.Default)
	}

	initial := def.Initial
	if initial == "" {
		initial = def.Default
	}
	if initial != "" {
		if err := m.SetCurrentState(initial); err != nil {
			return nil, fmt.Errorf("initial: %w", err)
		}
	}
	return m, nil
}

// Definition captures m's states, transitions and current state.
func (m *Machine) Definition() Definition {
	return Definition{
		Version:     "1.0",
		Default:     m.fallback,
		Initial:     m.current,
		States:      m.States(),
		Transitions: m.Transitions(),
	}
}

// Load reads a YAML definition and builds a Machine from it.
func Load(path string, log *slog.Logger) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	m, err := def.Build(log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Save writes m's definition as YAML.
func Save(m *Machine, path string) error {
	data, err := yaml.Marshal(m.Definition())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
