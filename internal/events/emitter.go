package events

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Name identifies an event emitted during a capture session.
type Name string

const (
	BeforeCapture  Name = "beforecapture"
	StartCapture   Name = "startcapture"
	Unsupported    Name = "unsupported"
	Capture        Name = "capture"
	Complete       Name = "complete"
	CompleteDetail Name = "completedetail"
	Aborted        Name = "aborted"

	// CatchAll receives every other event after its own handlers ran.
	CatchAll Name = "catchall"
)

var ErrUnknownEvent = errors.New("unknown event")

var known = map[Name]struct{}{
	BeforeCapture:  {},
	StartCapture:   {},
	Unsupported:    {},
	Capture:        {},
	Complete:       {},
	CompleteDetail: {},
	Aborted:        {},
	CatchAll:       {},
}

// ParseName resolves an event name case-insensitively.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := known[n]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
	}
	return n, nil
}

func (n Name) String() string { return string(n) }

// Event is what handlers receive. Name is always the original event name,
// also for catch-all handlers.
type Event struct {
	Name    Name
	Payload any
}

// Handler reacts to an event. Returning false marks the firing as
// default-prevented.
type Handler func(Event) bool

// ID identifies a registered handler for Off.
type ID uint64

type entry struct {
	id ID
	fn Handler
}

// Emitter is a registry of handlers keyed by event name. The zero value is
// ready to use.
type Emitter struct {
	mu       sync.Mutex
	handlers map[Name][]entry
	nextID   ID
}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// On registers fn for name. Handlers of the same name run in registration
// order.
func (e *Emitter) On(name Name, fn Handler) ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[Name][]entry)
	}
	e.nextID++
	e.handlers[name] = append(e.handlers[name], entry{id: e.nextID, fn: fn})
	return e.nextID
}

// Off removes the handler registered under id. Unknown ids are ignored.
func (e *Emitter) Off(name Name, id ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.handlers[name]
	for i, h := range list {
		if h.id == id {
			e.handlers[name] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// OffAll removes every handler registered for name.
func (e *Emitter) OffAll(name Name) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, name)
}

// Reset removes all handlers.
func (e *Emitter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = nil
}

// Count reports how many handlers are registered for name.
func (e *Emitter) Count(name Name) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[name])
}

// Fire calls the handlers of name, then the catch-all handlers with the same
// event. It reports true when no handler returned false.
func (e *Emitter) Fire(name Name, payload any) bool {
	ev := Event{Name: name, Payload: payload}
	prevented := e.dispatch(name, ev)
	if name != CatchAll {
		prevented = e.dispatch(CatchAll, ev) || prevented
	}
	return !prevented
}

func (e *Emitter) dispatch(name Name, ev Event) bool {
	e.mu.Lock()
	list := make([]entry, len(e.handlers[name]))
	copy(list, e.handlers[name])
	e.mu.Unlock()

	prevented := false
	for _, h := range list {
		if !h.fn(ev) {
			prevented = true
		}
	}
	return prevented
}
