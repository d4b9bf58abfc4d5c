package graph

// Event is one ingestion progress report, emitted per artifact.
type Event struct {
	Source   string
	Artifact string
	Counts   FactCounts
	Skipped  int
}

// Sink receives progress events. Publish must not block the caller
// indefinitely; implementations that cannot keep up should drop.
type Sink interface {
	Publish(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// ChannelSink buffers events on a bounded channel. When the buffer is full
// (slow or absent consumer) new events are dropped so ingestion never
// stalls on reporting.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink buffering up to size events.
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, size)}
}

func (s *ChannelSink) Publish(ev Event) {
	select {
	case s.ch <- ev:
	default:
	}
}

// Events returns the receive side for an independent consumer.
func (s *ChannelSink) Events() <-chan Event { return s.ch }

// Close closes the channel, signalling consumers that ingestion finished.
func (s *ChannelSink) Close() { close(s.ch) }
