package lifecycle

import (
	"fmt"

	"github.com/huiputin/routemap/pkg/core"
)

// State is the exclusive state of a route visit.
type State int

const (
	StateLoading State = iota
	StateViewing
	StateCreating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateViewing:
		return "viewing"
	case StateCreating:
		return "creating"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for c := StateLoading; c <= StateClosed; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Machine is a state plus the orthogonal UI flags of the viewing screen.
// Transitions never mutate the receiver.
type Machine struct {
	State                State `json:"state"`
	MarkingSent          bool  `json:"markingSent"`
	ConfirmDeleteVisible bool  `json:"confirmDeleteVisible"`
}

// Loading is the start of a visit to an existing route.
func Loading() Machine { return Machine{State: StateLoading} }

// Creating is the start of a visit to an empty spot on the map.
func Creating() Machine { return Machine{State: StateCreating} }

func (m Machine) invalid(op string) error {
	return fmt.Errorf("%w: %s while %s", core.ErrInvalidState, op, m.State)
}

// Loaded moves from Loading to Viewing. Later route data keeps the machine in Viewing.
func (m Machine) Loaded() (Machine, error) {
	switch m.State {
	case StateLoading:
		return Machine{State: StateViewing}, nil
	case StateViewing:
		return m, nil
	}
	return m, m.invalid("loaded")
}

// ToggleMarkingSent flips the sent form open or closed.
func (m Machine) ToggleMarkingSent() (Machine, error) {
	if m.State != StateViewing {
		return m, m.invalid("toggle marking sent")
	}
	m.MarkingSent = !m.MarkingSent
	return m, nil
}

// ShowConfirmDelete raises the delete confirmation.
func (m Machine) ShowConfirmDelete() (Machine, error) {
	if m.State != StateViewing {
		return m, m.invalid("show confirm delete")
	}
	m.ConfirmDeleteVisible = true
	return m, nil
}

// DismissConfirmDelete hides the delete confirmation.
func (m Machine) DismissConfirmDelete() (Machine, error) {
	if m.State != StateViewing {
		return m, m.invalid("dismiss confirm delete")
	}
	m.ConfirmDeleteVisible = false
	return m, nil
}

// Close ends the visit from any state and clears the flags.
func (m Machine) Close() Machine {
	return Machine{State: StateClosed}
}
