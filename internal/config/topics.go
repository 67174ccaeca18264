package config

const (
	// TopicSubmit carries channel resolution requests from intake to the resolver.
	TopicSubmit = "submit"

	// TopicResolved is emitted when a job's channel was resolved to a platform identifier.
	TopicResolved = "resolved"

	// TopicResolveError is emitted whenever a resolution ends with the job in error.
	TopicResolveError = "resolve-error"
)

// Consumer channel names.
const (
	ChannelResolver   = "resolver"
	ChannelDeadLetter = "deadletter"
)

// Topics lists every topic the backend produces, in pipeline order.
var Topics = []string{TopicSubmit, TopicResolved, TopicResolveError}
