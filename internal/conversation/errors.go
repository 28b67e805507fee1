package conversation

import "errors"

var (
	// ErrQuotaExhausted means the completion backend refused the call for
	// rate-limit or quota reasons.
	ErrQuotaExhausted = errors.New("conversation: completion quota exhausted")
	// ErrCompletionTimeout means the per-call completion deadline elapsed.
	ErrCompletionTimeout = errors.New("conversation: completion timed out")
)
