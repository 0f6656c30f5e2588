package statemachine

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind is the dynamic type held by a Value.
type Kind uint8

const (
	KindNumber Kind = iota
	KindBool
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a parameter or condition value: a number, a bool or a text.
// The zero Value is the number 0.
type Value struct {
	kind Kind
	num  float64
	b    bool
	text string
}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Text(s string) Value    { return Value{kind: KindText, text: s} }

// Parse reads a command-line style value: true/false become Bool,
// anything that parses as a float becomes Number, the rest is Text.
func Parse(s string) Value {
	switch s {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(f)
	}
	return Text(s)
}

func (v Value) Kind() Kind { return v.kind }

// Float coerces v to a number: bools become 0 or 1, texts are parsed and
// fall back to 0.
func (v Value) Float() float64 {
	switch v.kind {
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindText:
		f, err := strconv.ParseFloat(v.text, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return v.num
}

// Equal reports whether v and o hold the same kind and the same value.
// Values of different kinds are never equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindText:
		return v.text == o.text
	}
	return v.num == o.num
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindText:
		return v.text
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// IsZero reports whether v is the number 0, the zero Value.
func (v Value) IsZero() bool { return v.kind == KindNumber && v.num == 0 }

func (v Value) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindText:
		return v.text, nil
	}
	return v.num, nil
}

// UnmarshalYAML keeps the scalar's resolved YAML type: !!bool, !!int and
// !!float map to Bool and Number, everything else is Text.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: condition value must be a scalar", node.Line)
	}
	switch node.ShortTag() {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = Bool(b)
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*v = Number(f)
	default:
		*v = Text(node.Value)
	}
	return nil
}
