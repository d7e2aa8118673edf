package conversation

import "errors"

var (
	ErrConversationNotFound = errors.New("conversation: not found")
	ErrNotConversationOwner = errors.New("conversation: not owned by user")
)
