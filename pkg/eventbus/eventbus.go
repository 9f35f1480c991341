// Package eventbus implements EventBus: named-event dispatch to
// registered handlers, with a known-event allowlist and per-emit
// exception collection.
package eventbus

import (
	"fmt"
	"sync"

	"github.com/pion/logging"
)

// KnownEvents is the static set of event names the daemon itself emits.
// Registering a handler for a name outside this set is still allowed —
// it only logs a warning, since a caller may legitimately want a
// forward-compatible or application-defined event.
var KnownEvents = map[string]struct{}{
	"message":           {},
	"call_incoming":     {},
	"peer_connected":    {},
	"peer_disconnected": {},
	"file_received":     {},
	"channel_content":   {},
	"group_message":     {},
}

// Handler is invoked on Emit, receiving the event's positional
// arguments.
type Handler func(args ...interface{})

// Bus is EventBus.
type Bus struct {
	log logging.LeveledLogger

	mu       sync.Mutex
	handlers map[string][]Handler
}

// New constructs a Bus.
func New(loggerFactory logging.LoggerFactory) *Bus {
	var log logging.LeveledLogger
	if loggerFactory != nil {
		log = loggerFactory.NewLogger("eventbus")
	} else {
		log = logging.NewDefaultLoggerFactory().NewLogger("eventbus")
	}
	return &Bus{
		log:      log,
		handlers: make(map[string][]Handler),
	}
}

// On registers handler for event, appending to any already registered
// for that name.
func (b *Bus) On(event string, handler Handler) {
	if _, known := KnownEvents[event]; !known {
		b.log.Warnf("eventbus: registering handler for unknown event %q", event)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Emit invokes every handler registered for event with args, recovering
// from any handler panic and collecting it as an error rather than
// letting one bad handler take down the rest. Returns the collected
// errors so a caller that cares can react; a nil slice means every
// handler ran clean.
func (b *Bus) Emit(event string, args ...interface{}) []error {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers[event]...)
	b.mu.Unlock()

	var errs []error
	for _, h := range handlers {
		if err := invoke(h, args...); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func invoke(h Handler, args ...interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: handler panicked: %v", r)
		}
	}()
	h(args...)
	return nil
}
