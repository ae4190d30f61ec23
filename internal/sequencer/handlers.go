package sequencer

import "github.com/melody-ding/go-vidthumbs/internal/events"

// On registers a raw handler. See events.Emitter.On.
func (s *Sequencer) On(name events.Name, fn events.Handler) events.ID {
	return s.emitter.On(name, fn)
}

func (s *Sequencer) Off(name events.Name, id events.ID) {
	s.emitter.Off(name, id)
}

func (s *Sequencer) OffAll(name events.Name) {
	s.emitter.OffAll(name)
}

// OnAny registers a catch-all handler that sees every event.
func (s *Sequencer) OnAny(fn events.Handler) events.ID {
	return s.emitter.On(events.CatchAll, fn)
}

func (s *Sequencer) OnStartCapture(fn func([]Image)) events.ID {
	return s.emitter.On(events.StartCapture, func(ev events.Event) bool {
		fn(ev.Payload.([]Image))
		return true
	})
}

func (s *Sequencer) OnCapture(fn func(Image)) events.ID {
	return s.emitter.On(events.Capture, func(ev events.Event) bool {
		fn(ev.Payload.(Image))
		return true
	})
}

func (s *Sequencer) OnComplete(fn func([]Image)) events.ID {
	return s.emitter.On(events.Complete, func(ev events.Event) bool {
		fn(ev.Payload.([]Image))
		return true
	})
}

func (s *Sequencer) OnCompleteDetail(fn func(Detail)) events.ID {
	return s.emitter.On(events.CompleteDetail, func(ev events.Event) bool {
		fn(ev.Payload.(Detail))
		return true
	})
}

func (s *Sequencer) OnAborted(fn func([]Image)) events.ID {
	return s.emitter.On(events.Aborted, func(ev events.Event) bool {
		fn(ev.Payload.([]Image))
		return true
	})
}

func (s *Sequencer) OnUnsupported(fn func()) events.ID {
	return s.emitter.On(events.Unsupported, func(events.Event) bool {
		fn()
		return true
	})
}
