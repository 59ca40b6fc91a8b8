package behaviour

import (
	"fmt"

	"go.uber.org/multierr"
)

// Behaviour is per-frame scene logic. Start runs once before the first
// Update.
type Behaviour interface {
	Start() error
	Update(dt float32) error
}

type behaviourWrapper struct {
	name      string
	behaviour Behaviour
	started   bool
	enabled   bool
}

// Manager runs behaviours in insertion order. Each scene owns its own.
type Manager struct {
	behaviours []behaviourWrapper
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) Add(name string, b Behaviour) {
	m.behaviours = append(m.behaviours, behaviourWrapper{name: name, behaviour: b, enabled: true})
}

// Remove drops the behaviour registered under name, keeping the order of
// the others.
func (m *Manager) Remove(name string) bool {
	for i := range m.behaviours {
		if m.behaviours[i].name == name {
			m.behaviours = append(m.behaviours[:i], m.behaviours[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Manager) SetEnabled(name string, enabled bool) bool {
	for i := range m.behaviours {
		if m.behaviours[i].name == name {
			m.behaviours[i].enabled = enabled
			return true
		}
	}
	return false
}

func (m *Manager) Clear() {
	m.behaviours = m.behaviours[:0]
}

func (m *Manager) Len() int { return len(m.behaviours) }

// UpdateAll starts pending behaviours and updates every enabled one. All
// behaviours run even if some fail; the failures are combined.
func (m *Manager) UpdateAll(dt float32) error {
	var err error
	for i := range m.behaviours {
		w := &m.behaviours[i]
		if !w.enabled {
			continue
		}
		if !w.started {
			if serr := w.behaviour.Start(); serr != nil {
				err = multierr.Append(err, fmt.Errorf("start %s: %w", w.name, serr))
				continue
			}
			w.started = true
		}
		if uerr := w.behaviour.Update(dt); uerr != nil {
			err = multierr.Append(err, fmt.Errorf("update %s: %w", w.name, uerr))
		}
	}
	return err
}

// Func adapts a plain update function.
type Func func(dt float32) error

func (f Func) Start() error            { return nil }
func (f Func) Update(dt float32) error { return f(dt) }
