package driven

// Entity kinds clients can subscribe to over the push channel.
const (
	KindRepository = "repository"
	KindProject    = "project"
	KindTask       = "task"
	KindScratchOrg = "scratchorg"
)

// Notifier defines the driven port for pushing structured events to clients
// subscribed to an entity. Implementations must not block the caller beyond
// enqueueing the message; delivery order per entity follows call order.
type Notifier interface {
	// Notify delivers {type: event, payload: payload} to every connection
	// subscribed to (kind, id). The payload conventionally carries the
	// entity's serialized representation under the "model" key.
	Notify(kind, id, event string, payload map[string]any)

	// NotifyError delivers an error-shaped payload without a "model" key:
	// {type: event, payload: {message: ..., ...extra}}.
	NotifyError(kind, id, event string, err error, extra map[string]any)
}
