package errors

import "fmt"

var (
	ErrInvalidPayload       = fmt.Errorf("invalid payload")
	ErrSenderNotFound       = fmt.Errorf("sender not found")
	ErrUserNotFound         = fmt.Errorf("user not found")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrStorageUnavailable   = fmt.Errorf("storage unavailable")
	ErrConnClosed           = fmt.Errorf("connection closed")
	ErrAckTimeout           = fmt.Errorf("acknowledgment timeout")
	ErrWorkerPanic          = fmt.Errorf("worker panic")
)
