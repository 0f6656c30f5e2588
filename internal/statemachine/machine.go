// Package statemachine selects the active clip from named states and
// parameter-gated transitions, with timed blending between states.
//
// A Machine is driven from a single goroutine, usually the one that ticks
// the player.
package statemachine

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// ErrUnknownState is reported for references to states that do not exist.
var ErrUnknownState = errors.New("statemachine: unknown state")

// Mode is how a transition compares its parameter against Value.
type Mode string

const (
	Equals    Mode = "equals"
	NotEquals Mode = "not_equals"
	Greater   Mode = "greater"
	Less      Mode = "less"
)

// Segment is a frame window within a state's animation.
type Segment struct {
	Begin float64 `yaml:"begin"`
	End   float64 `yaml:"end"`
}

// State is a named clip with its playback parameters.
type State struct {
	Name      string   `yaml:"name"`
	Source    string   `yaml:"source"`
	Loop      bool     `yaml:"loop"`
	Speed     float64  `yaml:"speed"`
	BlendTime float64  `yaml:"blend_time"` // seconds
	Segment   *Segment `yaml:"segment,omitempty"`
}

// NewState returns a looping state at normal speed with a 0.2s blend.
func NewState(name, source string) State {
	return State{Name: name, Source: source, Loop: true, Speed: 1, BlendTime: 0.2}
}

// Transition moves from From to To when Parameter compares true against
// Value, or unconditionally with AutoAdvance.
type Transition struct {
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	Parameter   string `yaml:"parameter,omitempty"`
	Mode        Mode   `yaml:"mode,omitempty"`
	Value       Value  `yaml:"value,omitempty"`
	AutoAdvance bool   `yaml:"auto_advance,omitempty"`
}

// Holds reports whether t fires given params. A missing parameter never
// satisfies a condition.
func (t Transition) Holds(params map[string]Value) bool {
	if t.AutoAdvance {
		return true
	}
	if t.Parameter == "" {
		return false
	}
	p, ok := params[t.Parameter]
	if !ok {
		return false
	}

	switch t.Mode {
	case Equals, "":
		return p.Equal(t.Value)
	case NotEquals:
		return !p.Equal(t.Value)
	case Greater:
		return p.Float() > t.Value.Float()
	case Less:
		return p.Float() < t.Value.Float()
	}
	return false
}

// Clip is the switch directive handed to the player.
type Clip struct {
	Source  string
	Loop    bool
	Speed   float64
	Segment *Segment
}

// Clip returns the directive that makes s the active clip.
func (s State) Clip() Clip {
	return Clip{Source: s.Source, Loop: s.Loop, Speed: s.Speed, Segment: s.Segment}
}

// Switcher receives clip switches. The player implements it.
type Switcher interface {
	SwitchClip(Clip)
}

// Machine holds states, transitions, parameters and blend progress.
type Machine struct {
	log *slog.Logger

	states      []State
	transitions []Transition
	params      map[string]Value

	current  string
	fallback string // default state

	blending  bool
	progress  float64
	blendFrom string
	blendTo   string

	onChanged  []func(from, to string)
	onStarted  []func(from, to string)
	onFinished []func(to string)
}

// New creates an empty machine. A nil logger discards output.
func New(log *slog.Logger) *Machine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Machine{
		log:    log.With("component", "state-machine"),
		params: make(map[string]Value),
	}
}

// OnStateChanged registers fn for SetCurrentState and Reset jumps.
func (m *Machine) OnStateChanged(fn func(from, to string)) { m.onChanged = append(m.onChanged, fn) }

// OnTransitionStarted registers fn for every taken transition.
func (m *Machine) OnTransitionStarted(fn func(from, to string)) {
	m.onStarted = append(m.onStarted, fn)
}

// OnTransitionFinished registers fn for the end of every blend.
func (m *Machine) OnTransitionFinished(fn func(to string)) {
	m.onFinished = append(m.onFinished, fn)
}

// AddState appends s, replacing an existing state of the same name in place.
// Negative speed and blend time are clamped to 0.
func (m *Machine) AddState(s State) {
	s.Speed = max(0, s.Speed)
	s.BlendTime = max(0, s.BlendTime)
	if i := m.stateIndex(s.Name); i >= 0 {
		m.states[i] = s
		return
	}
	m.states = append(m.states, s)
}

// RemoveState drops the named state. Transitions referring to it stay and
// become no-ops.
func (m *Machine) RemoveState(name string) {
	if i := m.stateIndex(name); i >= 0 {
		m.states = slices.Delete(m.states, i, i+1)
	}
}

func (m *Machine) State(name string) (State, bool) {
	if i := m.stateIndex(name); i >= 0 {
		return m.states[i], true
	}
	return State{}, false
}

// States returns the states in declaration order.
func (m *Machine) States() []State { return slices.Clone(m.states) }

// AddTransition appends t. Declaration order decides priority.
func (m *Machine) AddTransition(t Transition) { m.transitions = append(m.transitions, t) }

// RemoveTransition drops the first transition from → to.
func (m *Machine) RemoveTransition(from, to string) {
	i := slices.IndexFunc(m.transitions, func(t Transition) bool {
		return t.From == from && t.To == to
	})
	if i >= 0 {
		m.transitions = slices.Delete(m.transitions, i, i+1)
	}
}

func (m *Machine) Transitions() []Transition { return slices.Clone(m.transitions) }

// SetCurrentState jumps to name without a transition or blend.
func (m *Machine) SetCurrentState(name string) error {
	if name == m.current {
		return nil
	}
	if m.stateIndex(name) < 0 {
		err := fmt.Errorf("%w: %q", ErrUnknownState, name)
		m.log.Warn("set current state ignored", "err", err)
		return err
	}

	from := m.current
	m.current = name
	for _, fn := range m.onChanged {
		fn(from, name)
	}
	return nil
}

// CurrentState returns the active state name, empty when nothing plays.
func (m *Machine) CurrentState() string { return m.current }

// SetDefaultState names the state Reset jumps to. It is not validated
// until Reset runs.
func (m *Machine) SetDefaultState(name string) { m.fallback = name }

func (m *Machine) DefaultState() string { return m.fallback }

func (m *Machine) SetParameter(name string, v Value) { m.params[name] = v }

func (m *Machine) Parameter(name string) (Value, bool) {
	v, ok := m.params[name]
	return v, ok
}

func (m *Machine) HasParameter(name string) bool {
	_, ok := m.params[name]
	return ok
}

// Parameters returns a copy of the parameter table.
func (m *Machine) Parameters() map[string]Value { return maps.Clone(m.params) }

func (m *Machine) InBlend() bool          { return m.blending }
func (m *Machine) BlendProgress() float64 { return m.progress }
func (m *Machine) BlendFrom() string      { return m.blendFrom }
func (m *Machine) BlendTo() string        { return m.blendTo }

// Update takes at most one transition out of the current state, then
// advances any blend by delta seconds. sw may be nil.
func (m *Machine) Update(delta float64, sw Switcher) {
	if t, ok := m.firstValid(); ok {
		m.take(t, sw)
	}
	if m.blending {
		m.advanceBlend(delta)
	}
}

func (m *Machine) firstValid() (Transition, bool) {
	for _, t := range m.transitions {
		if t.From == m.current && t.Holds(m.params) {
			return t, true
		}
	}
	return Transition{}, false
}

func (m *Machine) take(t Transition, sw Switcher) {
	i := m.stateIndex(t.To)
	if i < 0 {
		m.log.Warn("transition ignored", "from", t.From,
			"err", fmt.Errorf("%w: %q", ErrUnknownState, t.To))
		return
	}
	next := m.states[i]

	from := m.current
	m.blendFrom = from
	m.blendTo = next.Name
	m.blending = true
	m.progress = 0

	for _, fn := range m.onStarted {
		fn(from, next.Name)
	}
	if sw != nil {
		sw.SwitchClip(next.Clip())
	}
	m.current = next.Name
	m.log.Debug("transition taken", "from", from, "to", next.Name)
}

func (m *Machine) advanceBlend(delta float64) {
	i := m.stateIndex(m.current)
	if i < 0 {
		// The target was removed mid-blend.
		return
	}

	if bt := m.states[i].BlendTime; bt > 0 {
		m.progress += delta / bt
		if m.progress < 1 {
			return
		}
	}
	m.progress = 1
	m.blending = false
	for _, fn := range m.onFinished {
		fn(m.current)
	}
}

// Reset jumps to the default state if one is set, then clears parameters
// and any blend.
func (m *Machine) Reset() {
	if m.fallback != "" {
		m.SetCurrentState(m.fallback)
	}
	clear(m.params)
	m.blending = false
	m.progress = 0
}

func (m *Machine) stateIndex(name string) int {
	return slices.IndexFunc(m.states, func(s State) bool { return s.Name == name })
}
