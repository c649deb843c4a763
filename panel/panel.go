// Package panel is the registry behind the device web page: labelled
// readouts polled by the browser and buttons bound to device actions.
//
// Registration is append-only and normally happens once at startup.
// Rendering reads the registry on every request.
package panel

import (
	"errors"
	"sync"
)

// Errors
var (
	ErrInvalidButtonID  = errors.New("panel: button id must be URL-safe")
	ErrReservedButtonID = errors.New("panel: button id is reserved")
	ErrNilAction        = errors.New("panel: nil button action")
)

// Reserved paths that a button id would shadow.
var reserved = map[string]bool{
	"":        true,
	"readout": true,
	"update":  true,
	"metrics": true,
}

type readout struct {
	label string
	value Readout
}

type button struct {
	id     string
	label  string
	action func()
}

// Value is one readout as seen at a point in time.
type Value struct {
	Label string
	Value string
}

// Button describes a registered button.
type Button struct {
	ID    string
	Label string
}

// Panel holds the readouts and buttons shown on the device page.
type Panel struct {
	mu       sync.Mutex
	name     string
	readouts []readout
	buttons  []button

	// Cached page fragments.
	readoutHTML []byte
	buttonHTML  []byte
}

// New returns an empty panel. An empty name selects DefaultDeviceName.
func New(name string) *Panel {
	if name == "" {
		name = DefaultDeviceName()
	}
	return &Panel{name: name}
}

// SetDeviceName changes the name shown in the page title.
func (p *Panel) SetDeviceName(name string) {
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
}

// DeviceName returns the name shown in the page title.
func (p *Panel) DeviceName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// AddReadout appends a readout. value runs on every poll of the page and
// must return promptly; whatever it reads must outlive the panel.
//
// Labels are the keys of the readout JSON. A label registered twice keeps
// its first position and reports the later value.
func (p *Panel) AddReadout(label string, value Readout) {
	if value == nil {
		value = Func(func() string { return "" })
	}
	p.mu.Lock()
	p.readouts = append(p.readouts, readout{label: label, value: value})
	p.readoutHTML = renderReadouts(p.readoutHTML[:0], p.readouts)
	p.mu.Unlock()
}

// AddButton appends a button whose press runs action.
//
// Registering an id twice is allowed: the page shows both buttons and a
// press of the id runs every bound action in registration order.
func (p *Panel) AddButton(id, label string, action func()) error {
	if reserved[id] {
		return ErrReservedButtonID
	}
	if !validID(id) {
		return ErrInvalidButtonID
	}
	if action == nil {
		return ErrNilAction
	}
	p.mu.Lock()
	b := button{id: id, label: label, action: action}
	p.buttons = append(p.buttons, b)
	p.buttonHTML = appendButton(p.buttonHTML, b)
	p.mu.Unlock()
	return nil
}

// Press runs the actions bound to id. It reports false if no button has id.
// Actions run without the panel lock held.
func (p *Panel) Press(id string) bool {
	p.mu.Lock()
	var actions []func()
	for _, b := range p.buttons {
		if b.id == id {
			actions = append(actions, b.action)
		}
	}
	p.mu.Unlock()

	for _, fn := range actions {
		fn()
	}
	return len(actions) > 0
}

// HasButton reports whether a button with id is registered.
func (p *Panel) HasButton(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.buttons {
		if b.id == id {
			return true
		}
	}
	return false
}

// Buttons returns the registered buttons in order.
func (p *Panel) Buttons() []Button {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Button, len(p.buttons))
	for i, b := range p.buttons {
		out[i] = Button{ID: b.id, Label: b.label}
	}
	return out
}

// Values evaluates every readout, one entry per label in first-registration
// order.
func (p *Panel) Values() []Value {
	p.mu.Lock()
	items := make([]readout, len(p.readouts))
	copy(items, p.readouts)
	p.mu.Unlock()

	out := make([]Value, 0, len(items))
	index := make(map[string]int, len(items))
	for _, r := range items {
		v := r.value()
		if i, ok := index[r.label]; ok {
			out[i].Value = v
			continue
		}
		index[r.label] = len(out)
		out = append(out, Value{Label: r.label, Value: v})
	}
	return out
}

// validID reports whether id can be used unescaped in a URL path segment
// and an HTML id attribute.
func validID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == '~':
		default:
			return false
		}
	}
	return id != "." && id != ".."
}
