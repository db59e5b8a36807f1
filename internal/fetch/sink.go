package fetch

import (
	"github.com/jkfujinami/linepy/internal/dispatch"
	"github.com/jkfujinami/linepy/internal/facade"
)

// squareServiceKind is the push.ServiceKind value for Square (3), repeated
// here as a plain int so this package doesn't need to import internal/push
// just to label dispatched events.
const squareServiceKind = 3

// DispatcherSink adapts a *dispatch.Dispatcher to the EventSink interface a
// Worker enqueues into, translating the fetcher's (kind, chatMid, event)
// triple into the dispatcher's generic Event.
type DispatcherSink struct {
	d *dispatch.Dispatcher
}

func NewDispatcherSink(d *dispatch.Dispatcher) *DispatcherSink {
	return &DispatcherSink{d: d}
}

func (s *DispatcherSink) Enqueue(kind ServiceEventKind, chatMid string, event facade.Event) {
	serviceKind := squareServiceKind
	if kind != EventKindSquare {
		serviceKind = int(kind)
	}
	s.d.Enqueue(dispatch.Event{
		ServiceKind: serviceKind,
		ChatMid:     chatMid,
		Payload:     event,
	})
}
