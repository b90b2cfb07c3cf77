package attester

// Subscriber dispatches scheduler events to the registered handlers
type Subscriber struct {
	done     chan struct{}
	started  func(SchedulerStarted)
	complete func(RunCompleted)
	skipped  func(RunSkipped)
	failed   func(RunFailed)
	shutdown func(SchedulerShutdown)
}

// OnSchedulerStarted sets the handler for SchedulerStarted events
func OnSchedulerStarted(fn func(SchedulerStarted)) func(*Subscriber) {
	return func(s *Subscriber) { s.started = fn }
}

// OnRunCompleted sets the handler for RunCompleted events
func OnRunCompleted(fn func(RunCompleted)) func(*Subscriber) {
	return func(s *Subscriber) { s.complete = fn }
}

// OnRunSkipped sets the handler for RunSkipped events
func OnRunSkipped(fn func(RunSkipped)) func(*Subscriber) {
	return func(s *Subscriber) { s.skipped = fn }
}

// OnRunFailed sets the handler for RunFailed events
func OnRunFailed(fn func(RunFailed)) func(*Subscriber) {
	return func(s *Subscriber) { s.failed = fn }
}

// OnSchedulerShutdown sets the handler for SchedulerShutdown events
func OnSchedulerShutdown(fn func(SchedulerShutdown)) func(*Subscriber) {
	return func(s *Subscriber) { s.shutdown = fn }
}

// NewSubscriber starts dispatching events until the channel closes.
// The returned closer blocks until every event has been handled.
func NewSubscriber(events <-chan Event, opts ...func(*Subscriber)) func() {
	s := &Subscriber{
		done:     make(chan struct{}),
		started:  func(SchedulerStarted) {},
		complete: func(RunCompleted) {},
		skipped:  func(RunSkipped) {},
		failed:   func(RunFailed) {},
		shutdown: func(SchedulerShutdown) {},
	}

	for _, opt := range opts {
		opt(s)
	}

	go func() {
		defer close(s.done)
		for ev := range events {
			switch e := ev.(type) {
			case SchedulerStarted:
				s.started(e)
			case RunCompleted:
				s.complete(e)
			case RunSkipped:
				s.skipped(e)
			case RunFailed:
				s.failed(e)
			case SchedulerShutdown:
				s.shutdown(e)
			}
		}
	}()

	return func() {
		<-s.done
	}
}
