package store

type Conversation struct {
	UID       string
	UserID    string
	Title     string
	Starred   bool
	CreatedTs int64
	UpdatedTs int64
	ID        int64
}

type FindConversation struct {
	ID      *int64
	UID     *string
	UserID  *string
	Starred *bool
}

type UpdateConversation struct {
	Title     *string
	Starred   *bool
	UpdatedTs *int64
	UID       string
}

type DeleteConversation struct {
	UID string
}
