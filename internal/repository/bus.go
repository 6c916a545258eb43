package repository

// MessageBus publishes engine events to whatever broker the deployment
// wired in. Publishing is best-effort from the caller's point of view:
// events go out after the transaction committed.
type MessageBus interface {
	Publish(topic string, data []byte) error
}

// NopBus drops every event. Used when no broker is configured.
type NopBus struct{}

func (NopBus) Publish(string, []byte) error { return nil }
