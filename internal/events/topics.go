package events

// Topic constants for shopping session lifecycle events.
const (
	TopicSessionStarted     = "session.started"
	TopicSessionItemChanged = "session.item_changed"
	TopicSessionCompleted   = "session.completed"
	TopicSessionCancelled   = "session.cancelled"
)

// DefaultTopics returns every topic the bus emits.
func DefaultTopics() []string {
	return []string{
		TopicSessionStarted,
		TopicSessionItemChanged,
		TopicSessionCompleted,
		TopicSessionCancelled,
	}
}
