package mqtt

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	// States contains all state transitions that were published.
	States []StateEvent

	// Samples contains all samples that were published.
	Samples []SampleEvent

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// Payloads maps topics to the JSON payloads published on them, in order.
	Payloads map[string][][]byte

	// PublishError, if set, is returned by every publish method.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Payloads: make(map[string][][]byte)}
}

func (f *FakePublisher) record(topic string, payload []byte) {
	if f.Payloads == nil {
		f.Payloads = make(map[string][][]byte)
	}
	f.Payloads[topic] = append(f.Payloads[topic], payload)
}

// PublishState records the transition.
func (f *FakePublisher) PublishState(event StateEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatStatePayload(event)
	if err != nil {
		return err
	}
	f.States = append(f.States, event)
	f.record(TopicState(event.DeviceID), payload)
	return nil
}

// PublishSample records the sample.
func (f *FakePublisher) PublishSample(event SampleEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatSamplePayload(event)
	if err != nil {
		return err
	}
	f.Samples = append(f.Samples, event)
	f.record(TopicSamples(event.DeviceID), payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.record(TopicSystem(event.DeviceID), payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}
