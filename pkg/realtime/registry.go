package realtime

import "github.com/yanun0323/logs"

// Handler receives inbound messages of a subscribed type. Handlers share the
// message and must not modify it.
type Handler func(msg *Message)

type registry struct {
	set listenerSet[MessageType, Handler]
}

func (r *registry) subscribe(t MessageType, h Handler) func() {
	if h == nil {
		return func() {}
	}
	return r.set.add(t, h)
}

func (r *registry) subscribeMany(types []MessageType, h Handler) func() {
	offs := make([]func(), 0, len(types))
	for _, t := range types {
		offs = append(offs, r.subscribe(t, h))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// dispatch invokes handlers in registration order. Handlers removed after the
// snapshot was taken are skipped.
func dispatch(msg *Message, handlers []listener[Handler]) {
	for _, h := range handlers {
		if !h.active.Load() {
			continue
		}
		callHandler(msg, h.fn)
	}
}

func callHandler(msg *Message, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("handler of %s panicked: %v", msg.Type, r)
		}
	}()
	fn(msg)
}
