package store

// PendingRequest is a queued, not-yet-delivered mutation destined for the
// remote API. Timestamp (unix milliseconds) is the drain ordering key; ID
// breaks ties.
type PendingRequest struct {
	ID         string
	Timestamp  int64
	Method     string
	URL        string
	Headers    map[string]string
	Body       []byte
	RetryCount int
	MaxRetries int
}

// IsMutation reports whether the method is one the queue accepts.
func IsMutation(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

type FindPendingRequest struct {
	ID *string
}

// UpdatePendingRequest only ever touches the retry counter. Eviction at the
// retry limit is the caller's decision, never a side effect of an update.
type UpdatePendingRequest struct {
	RetryCount *int
	ID         string
}

type DeletePendingRequest struct {
	ID string
}
