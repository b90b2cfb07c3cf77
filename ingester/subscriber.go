package ingester

// Subscriber dispatches service events to the registered handlers
type Subscriber struct {
	done                 chan struct{}
	backfillStarted      func(BackfillStarted)
	daySynced            func(DaySynced)
	backfillDone         func(BackfillDone)
	backfillError        func(BackfillError)
	pollingStarted       func(PollingStarted)
	pollingSyncCompleted func(PollingSyncCompleted)
	pollingShutdown      func(PollingShutdown)
	pollingError         func(PollingError)
}

// OnBackfillStarted sets the handler for BackfillStarted events
func OnBackfillStarted(fn func(BackfillStarted)) func(*Subscriber) {
	return func(s *Subscriber) { s.backfillStarted = fn }
}

// OnDaySynced sets the handler for DaySynced events
func OnDaySynced(fn func(DaySynced)) func(*Subscriber) {
	return func(s *Subscriber) { s.daySynced = fn }
}

// OnBackfillDone sets the handler for BackfillDone events
func OnBackfillDone(fn func(BackfillDone)) func(*Subscriber) {
	return func(s *Subscriber) { s.backfillDone = fn }
}

// OnBackfillError sets the handler for BackfillError events
func OnBackfillError(fn func(BackfillError)) func(*Subscriber) {
	return func(s *Subscriber) { s.backfillError = fn }
}

// OnPollingStarted sets the handler for PollingStarted events
func OnPollingStarted(fn func(PollingStarted)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollingStarted = fn }
}

// OnPollingSyncCompleted sets the handler for PollingSyncCompleted events
func OnPollingSyncCompleted(fn func(PollingSyncCompleted)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollingSyncCompleted = fn }
}

// OnPollingShutdown sets the handler for PollingShutdown events
func OnPollingShutdown(fn func(PollingShutdown)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollingShutdown = fn }
}

// OnPollingError sets the handler for PollingError events
func OnPollingError(fn func(PollingError)) func(*Subscriber) {
	return func(s *Subscriber) { s.pollingError = fn }
}

// NewSubscriber starts dispatching events to the given handlers until the channel closes.
// The returned closer blocks until every event has been handled:
//
//	closer := ingester.NewSubscriber(events,
//	  ingester.OnDaySynced(func(e ingester.DaySynced) { ... }),
//	)
//	defer closer()
func NewSubscriber(events <-chan Event, opts ...func(*Subscriber)) func() {
	s := &Subscriber{
		done:                 make(chan struct{}),
		backfillStarted:      func(BackfillStarted) {},
		daySynced:            func(DaySynced) {},
		backfillDone:         func(BackfillDone) {},
		backfillError:        func(BackfillError) {},
		pollingStarted:       func(PollingStarted) {},
		pollingSyncCompleted: func(PollingSyncCompleted) {},
		pollingShutdown:      func(PollingShutdown) {},
		pollingError:         func(PollingError) {},
	}

	for _, opt := range opts {
		opt(s)
	}

	go func() {
		defer close(s.done)
		for ev := range events {
			switch e := ev.(type) {
			case BackfillStarted:
				s.backfillStarted(e)
			case DaySynced:
				s.daySynced(e)
			case BackfillDone:
				s.backfillDone(e)
			case BackfillError:
				s.backfillError(e)
			case PollingStarted:
				s.pollingStarted(e)
			case PollingSyncCompleted:
				s.pollingSyncCompleted(e)
			case PollingShutdown:
				s.pollingShutdown(e)
			case PollingError:
				s.pollingError(e)
			}
		}
	}()

	return func() {
		<-s.done
	}
}
