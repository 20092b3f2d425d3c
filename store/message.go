package store

// Role indicates who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is immutable once created; it is only ever removed together with
// its conversation.
type Message struct {
	UID             string
	ConversationUID string
	UserID          string
	Role            Role
	Content         string
	Files           []string
	CreatedTs       int64
	ID              int64
}

type FindMessage struct {
	ID              *int64
	UID             *string
	ConversationUID *string
	UserID          *string
}

type DeleteMessage struct {
	UID             *string
	ConversationUID *string
}
