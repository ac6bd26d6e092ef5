package errs

// Request-level error codes. 1xxx are connection/auth, 11xx validation,
// 12xx call signaling, 13xx persistence.
var (
	ErrAuthRequired = NewCodeError(1001, "authentication required")
	ErrInvalidToken = NewCodeError(1002, "invalid token")

	ErrValidation    = NewCodeError(1100, "invalid request")
	ErrNotChatMember = NewCodeError(1101, "not a member of this chat")

	ErrUserOffline = NewCodeError(1200, "user offline")
	ErrUserBusy    = NewCodeError(1201, "already in a call")

	ErrInternal = NewCodeError(1300, "server error")
)
