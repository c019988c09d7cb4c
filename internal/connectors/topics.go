package connectors

const (
	TopicConnStatus = "conn.status"
	TopicMessageIn  = "message.in"
	TopicMessageOut = "message.out"

	eventTopicPrefix = "event."
)

// EventTopic is the bus topic carrying inbound gateway messages named event.
func EventTopic(event string) string {
	return eventTopicPrefix + event
}
