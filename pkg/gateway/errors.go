package gateway

import "errors"

// Mutation rejection taxonomy. The API layer maps these to HTTP statuses;
// everything else surfaces as an internal error.
var (
	// ErrConflict rejects a mutation referencing a post this engine does
	// not know about.
	ErrConflict = errors.New("mutation references unknown post")
	// ErrNotFound rejects a reply to a parent comment that does not exist
	// on the target post.
	ErrNotFound = errors.New("parent comment not found")
	// ErrDepthExceeded rejects a reply below the maximum nesting depth.
	ErrDepthExceeded = errors.New("comment nesting too deep")
	// ErrRateLimited rejects a mutation from a user over their budget.
	ErrRateLimited = errors.New("mutation rate limit exceeded")
	// ErrInvalid rejects a malformed mutation (unknown reaction type,
	// empty or oversized content, bad intensity).
	ErrInvalid = errors.New("invalid mutation")
)
