package hub

const (
	MessageReceived = "MessageReceived"

	ChannelUpdated = "ChannelUpdated"
	ChannelJoined  = "ChannelJoined"
	ChannelLeft    = "ChannelLeft"

	UserUpdated = "UserUpdated"

	Connected    = "Connected"
	Disconnected = "Disconnected"
	Reconnecting = "Reconnecting"

	NetworkOn  = "NetworkOn"
	NetworkOff = "NetworkOff"

	LoadUsersSucceeded = "LoadUsersSucceeded"
	LoadUsersFailed    = "LoadUsersFailed"

	InitSucceeded = "InitSucceeded"
	InitFailed    = "InitFailed"

	LoadMessagesSucceeded = "LoadMessagesSucceeded"
	LoadMessagesFailed    = "LoadMessagesFailed"
	LoadHistorySucceeded  = "LoadHistorySucceeded"
	LoadHistoryFailed     = "LoadHistoryFailed"

	LoginSucceeded = "LoginSucceeded"
	LoginFailed    = "LoginFailed"

	OperationFailed = "OperationFailed"
)
