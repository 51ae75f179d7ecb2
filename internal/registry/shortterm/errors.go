package shortterm

import "errors"

// ErrNotFound indicates no record matched the (category, agent, message_id)
// triple. This is an expected outcome, not a store failure: records expire
// on their own, so lookups racing TTL expiry hit this path routinely.
var ErrNotFound = errors.New("short-term record not found")
